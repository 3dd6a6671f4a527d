package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
	"go.uber.org/zap"

	"m365prov/pkg/problems"
)

type DecisionStatus string

const (
	Allow   DecisionStatus = "ALLOW"
	Blocked DecisionStatus = "BLOCKED"
)

// Input is what a guard module sees as `input`.
type Input struct {
	Action        string
	Path          string
	Service       string
	Handler       string
	Branch        string
	TenantID      string
	Principal     string
	Prerequisites map[string]string
}

func (in Input) doc() map[string]any {
	pre := map[string]any{}
	for k, v := range in.Prerequisites {
		pre[k] = v
	}
	return map[string]any{
		"action":        in.Action,
		"path":          in.Path,
		"service":       in.Service,
		"handler":       in.Handler,
		"branch":        in.Branch,
		"tenant":        in.TenantID,
		"principal":     in.Principal,
		"prerequisites": pre,
	}
}

type Decision struct {
	Status  DecisionStatus
	Reasons []string
}

func (d Decision) Allowed() bool { return d.Status == Allow }

// Guard evaluates an operator supplied rego module (entrypoint
// `data.m365prov.decide`) before an action runs. A Guard without a module
// allows everything.
type Guard struct {
	log   *zap.SugaredLogger
	query *rego.PreparedEvalQuery
}

// Load reads the module at path; an empty path yields an allow-all guard.
func Load(ctx context.Context, path string, log *zap.SugaredLogger) (*Guard, error) {
	if path == "" {
		return &Guard{log: log}, nil
	}
	mod, err := os.ReadFile(path)
	if err != nil {
		return nil, problems.New(problems.KindConfig, "guard policy", err)
	}
	return New(ctx, string(mod), log)
}

func New(ctx context.Context, module string, log *zap.SugaredLogger) (*Guard, error) {
	if module == "" {
		return &Guard{log: log}, nil
	}
	pq, err := rego.New(
		rego.Query("data.m365prov.decide"),
		rego.Module("guard.rego", module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, problems.New(problems.KindConfig, "guard policy", err)
	}
	return &Guard{log: log, query: &pq}, nil
}

func (g *Guard) Enabled() bool { return g != nil && g.query != nil }

// Decide never fails open on evaluation errors: they block the action.
func (g *Guard) Decide(ctx context.Context, in Input) Decision {
	if !g.Enabled() {
		return Decision{Status: Allow}
	}
	rs, err := g.query.Eval(ctx, rego.EvalInput(in.doc()))
	if err != nil || len(rs) == 0 || len(rs[0].Expressions) == 0 {
		g.log.Warnw("guard evaluation failed", "action", in.Action, "err", err)
		return Decision{Status: Blocked, Reasons: []string{"policy_error"}}
	}
	out := rs[0].Expressions[0].Value
	m, ok := out.(map[string]any)
	if !ok {
		return Decision{Status: Allow}
	}
	dec := Decision{Status: Blocked}
	if s, _ := m["status"].(string); s == string(Allow) {
		dec.Status = Allow
	}
	if rs, ok := m["reasons"].([]any); ok {
		for _, r := range rs {
			dec.Reasons = append(dec.Reasons, fmt.Sprint(r))
		}
	}
	g.log.Debugw("guard decision", "action", in.Action, "status", dec.Status, "reasons", dec.Reasons)
	return dec
}
