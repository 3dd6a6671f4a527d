// Package identitytest provides a scripted Authenticator for tests.
package identitytest

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"

	"m365prov/pkg/identity"
	"m365prov/pkg/scopes"
)

// Authenticator mints unsigned-looking test tokens whose scp claim echoes
// the requested scopes.
type Authenticator struct {
	TenantID   string
	Principal  string
	Err        error // returned by Token when set
	SignOutErr error

	mu       sync.Mutex
	requests [][]string
	signOuts int
	builds   int
}

func New() *Authenticator {
	return &Authenticator{TenantID: "11111111-2222-3333-4444-555555555555", Principal: "admin@contoso.onmicrosoft.com"}
}

// Factory hands out the same fake on every build so tests can count calls.
func (a *Authenticator) Factory() identity.Factory {
	return func() (identity.Authenticator, error) {
		a.mu.Lock()
		a.builds++
		a.mu.Unlock()
		return a, nil
	}
}

func (a *Authenticator) Token(_ context.Context, requested []string) (identity.AccessToken, error) {
	a.mu.Lock()
	a.requests = append(a.requests, append([]string(nil), requested...))
	err := a.Err
	a.mu.Unlock()
	if err != nil {
		return identity.AccessToken{}, err
	}
	exp := time.Now().Add(time.Hour)
	raw, err := Token(a.TenantID, a.Principal, scopes.New(requested...).String(), exp)
	if err != nil {
		return identity.AccessToken{}, err
	}
	return identity.AccessToken{Token: raw, ExpiresOn: exp}, nil
}

func (a *Authenticator) SignOut(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signOuts++
	return a.SignOutErr
}

// Requests returns every scope list passed to Token, in order.
func (a *Authenticator) Requests() [][]string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([][]string(nil), a.requests...)
}

func (a *Authenticator) SignOuts() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.signOuts
}

func (a *Authenticator) Builds() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.builds
}

// Token builds an HS256 JWT carrying Entra-style claims.
func Token(tenantID, principal, scp string, exp time.Time) (string, error) {
	tok := jwt.New()
	claims := []struct {
		name  string
		value any
	}{
		{"tid", tenantID},
		{"upn", principal},
		{"scp", strings.TrimSpace(scp)},
		{jwt.ExpirationKey, exp},
	}
	for _, c := range claims {
		if err := tok.Set(c.name, c.value); err != nil {
			return "", err
		}
	}
	signed, err := jwt.Sign(tok, jwt.WithKey(jwa.HS256, []byte("identitytest")))
	if err != nil {
		return "", err
	}
	return string(signed), nil
}
