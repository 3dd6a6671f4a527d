package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"m365prov/pkg/problems"
	"m365prov/pkg/scopes"
)

var ErrNotConnected = errors.New("not connected")

// Manager owns the operator session. The shell loop is single threaded but
// the status endpoint reads the session from another goroutine, so mu only
// guards the swap of auth and session; sign-in itself runs under signin.
type Manager struct {
	log     *zap.SugaredLogger
	factory Factory
	now     func() time.Time

	signin sync.Mutex

	mu      sync.RWMutex
	auth    Authenticator
	session *Session
}

func NewManager(factory Factory, log *zap.SugaredLogger) *Manager {
	return &Manager{log: log, factory: factory, now: time.Now}
}

// Connect signs in with the requested scopes. An existing authenticator is
// reused so a cached sign-in does not prompt again.
func (m *Manager) Connect(ctx context.Context, requested scopes.Set) (Session, error) {
	m.signin.Lock()
	defer m.signin.Unlock()
	return m.connect(ctx, requested)
}

// Reconnect tears down the current session (best effort) and signs in again
// with a new scope set.
func (m *Manager) Reconnect(ctx context.Context, requested scopes.Set) (Session, error) {
	m.signin.Lock()
	defer m.signin.Unlock()
	m.teardown(ctx)
	return m.connect(ctx, requested)
}

// Disconnect ends the session; teardown failures are logged only.
func (m *Manager) Disconnect(ctx context.Context) {
	m.signin.Lock()
	defer m.signin.Unlock()
	m.teardown(ctx)
}

func (m *Manager) CurrentSession() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// Token returns a bearer token for fully qualified resource scopes from the
// active session's authenticator.
func (m *Manager) Token(ctx context.Context, resourceScopes []string) (string, error) {
	m.mu.RLock()
	auth := m.auth
	connected := m.session != nil
	m.mu.RUnlock()
	if auth == nil || !connected {
		return "", problems.Auth(ErrNotConnected)
	}
	tok, err := auth.Token(ctx, resourceScopes)
	if err != nil {
		return "", problems.Auth(err)
	}
	return tok.Token, nil
}

// connect runs the interactive sign-in without holding mu. CurrentSession
// and Token keep answering from the previous state until the swap.
func (m *Manager) connect(ctx context.Context, requested scopes.Set) (Session, error) {
	m.mu.RLock()
	auth := m.auth
	m.mu.RUnlock()
	if auth == nil {
		built, err := m.factory()
		if err != nil {
			return Session{}, problems.Auth(err)
		}
		auth = built
		m.mu.Lock()
		m.auth = auth
		m.mu.Unlock()
	}
	tok, err := auth.Token(ctx, requested.Qualified(scopes.GraphResource))
	if err != nil {
		m.log.Warnw("sign-in failed", "err", err)
		return Session{}, problems.Auth(err)
	}
	claims, err := ParseClaims(tok.Token)
	if err != nil {
		return Session{}, problems.Auth(err)
	}
	s := Session{
		TenantID:    claims.TenantID,
		Principal:   claims.Principal,
		Scopes:      requested,
		Granted:     claims.Scopes,
		ConnectedAt: m.now(),
		ExpiresOn:   tok.ExpiresOn,
	}
	if s.ExpiresOn.IsZero() {
		s.ExpiresOn = claims.Expires
	}
	m.mu.Lock()
	m.session = &s
	m.mu.Unlock()
	m.log.Infow("connected", "tenant", s.TenantID, "principal", s.Principal, "scopes", s.Scopes.String())
	return s, nil
}

func (m *Manager) teardown(ctx context.Context) {
	m.mu.Lock()
	auth, sess := m.auth, m.session
	m.auth = nil
	m.session = nil
	m.mu.Unlock()
	if auth != nil {
		if err := auth.SignOut(ctx); err != nil {
			m.log.Warnw("sign-out failed", "err", err)
		}
	}
	if sess != nil {
		m.log.Infow("disconnected", "tenant", sess.TenantID)
	}
}
