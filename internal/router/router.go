package router

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"m365prov/pkg/identity"
	"m365prov/pkg/problems"
	"m365prov/pkg/scopes"
	"m365prov/pkg/telemetry"
)

// Policy decides when a session's scopes no longer fit a service.
type Policy string

const (
	// Exact reconnects whenever the requested set differs from the
	// service's set, supersets included.
	Exact Policy = "exact"
	// Subset reconnects only when a required scope is neither requested
	// nor granted.
	Subset Policy = "subset"
)

func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", Exact:
		return Exact, nil
	case Subset:
		return Subset, nil
	default:
		return "", problems.Newf(problems.KindConfig, "unknown scope policy", "%q (want exact or subset)", s)
	}
}

type Sessions interface {
	CurrentSession() (identity.Session, bool)
	Reconnect(ctx context.Context, requested scopes.Set) (identity.Session, error)
}

// Router keeps the session's permission scopes in line with the service
// the operator is working in.
type Router struct {
	log      *zap.SugaredLogger
	sessions Sessions
	policy   Policy
	metrics  *telemetry.Metrics
}

func New(sessions Sessions, policy Policy, log *zap.SugaredLogger, metrics *telemetry.Metrics) *Router {
	if policy == "" {
		policy = Exact
	}
	return &Router{log: log, sessions: sessions, policy: policy, metrics: metrics}
}

func (r *Router) Policy() Policy { return r.policy }

// NeedsReconnect applies the policy to a session and a required set.
func (r *Router) NeedsReconnect(s identity.Session, required scopes.Set) bool {
	switch r.policy {
	case Subset:
		return !required.IsSubsetOf(s.Effective())
	default:
		return !required.Equal(s.Scopes)
	}
}

// EnsureScopes reports whether the session can serve svc, reconnecting with
// the service's scope set when the policy demands it. Without a session it
// fails with identity.ErrNotConnected and makes no call.
func (r *Router) EnsureScopes(ctx context.Context, svc scopes.Service) (bool, error) {
	s, ok := r.sessions.CurrentSession()
	if !ok {
		return false, problems.Auth(fmt.Errorf("%w: connect before opening the %s menu", identity.ErrNotConnected, svc))
	}
	required := scopes.Required(svc)
	if !r.NeedsReconnect(s, required) {
		return true, nil
	}
	r.log.Infow("scope change", "service", svc, "policy", r.policy,
		"missing", s.Scopes.Missing(required), "from", s.Scopes.String())
	if r.metrics != nil {
		r.metrics.Reconnects.WithLabelValues(string(svc)).Inc()
	}
	if _, err := r.sessions.Reconnect(ctx, required); err != nil {
		return false, err
	}
	return true, nil
}
