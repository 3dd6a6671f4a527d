package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"m365prov/internal/policy"
	"m365prov/pkg/artifact"
	"m365prov/pkg/identity"
	"m365prov/pkg/journal"
	"m365prov/pkg/middleware"
	"m365prov/pkg/problems"
	"m365prov/pkg/scopes"
	"m365prov/pkg/telemetry"
)

// maxAttempts bounds how often an invalid prompt answer is asked again.
const maxAttempts = 3

type SessionSource interface {
	CurrentSession() (identity.Session, bool)
}

// Prompter asks the operator for one artifact input. prev is the reason the
// previous answer was rejected, nil on the first attempt.
type Prompter interface {
	Ask(ctx context.Context, p artifact.Prompt, prev error) (string, error)
}

type Options struct {
	Log      *zap.SugaredLogger
	Source   artifact.Source
	Verifier artifact.Verifier
	Cache    artifact.Cache
	Registry *Registry
	Sessions SessionSource
	Prompter Prompter
	Guard    *policy.Guard
	Journal  journal.Store
	Metrics  *telemetry.Metrics
	Branch   string
	// Facts supplies the prerequisite state handed to the guard policy.
	Facts func() map[string]string
}

// Dispatcher resolves artifact paths to verified artifacts and runs them
// through the registered command handlers.
type Dispatcher struct {
	Options
	now func() time.Time
}

func New(opts Options) *Dispatcher {
	if opts.Log == nil {
		opts.Log = zap.NewNop().Sugar()
	}
	if opts.Verifier == nil {
		opts.Verifier = artifact.NoVerify
	}
	if opts.Guard == nil {
		opts.Guard = &policy.Guard{}
	}
	return &Dispatcher{Options: opts, now: time.Now}
}

// Invoke loads path (cache first, then fetch and verify) and runs it. Every
// failure, panics included, comes back as an Err result.
func (d *Dispatcher) Invoke(ctx context.Context, path string, params map[string]any) Result {
	start := d.now()
	runID := uuid.NewString()
	ctx = middleware.WithRequestID(ctx, runID)
	log := d.Log.With("run", runID, "path", path)

	var (
		res  Result
		art  *artifact.Artifact
		sess identity.Session
	)
	err := middleware.Recover(log, func() error {
		var ok bool
		if sess, ok = d.Sessions.CurrentSession(); !ok {
			return problems.Auth(identity.ErrNotConnected)
		}
		a, err := d.load(ctx, path)
		if err != nil {
			return err
		}
		art = a
		dec := d.Guard.Decide(ctx, policy.Input{
			Action:        a.Name,
			Path:          path,
			Service:       a.Service,
			Handler:       a.Handler,
			Branch:        d.Branch,
			TenantID:      sess.TenantID,
			Principal:     sess.Principal,
			Prerequisites: d.facts(),
		})
		if !dec.Allowed() {
			return problems.Newf(problems.KindPolicy, "blocked by guard policy", "%s", strings.Join(dec.Reasons, "; "))
		}
		res = d.execute(ctx, path, a, sess, params)
		return nil
	})
	if err != nil {
		res = Err(err)
	}
	d.record(ctx, runID, path, art, sess, start, res)
	if res.OK() {
		log.Infow("dispatch ok", "elapsed", d.now().Sub(start))
	} else {
		log.Warnw("dispatch failed", "kind", res.Kind(), "reason", res.Reason())
	}
	return res
}

// Execute runs an already loaded artifact for the current session.
func (d *Dispatcher) Execute(ctx context.Context, art *artifact.Artifact, params map[string]any) Result {
	sess, ok := d.Sessions.CurrentSession()
	if !ok {
		return Err(problems.Auth(identity.ErrNotConnected))
	}
	return d.execute(ctx, "", art, sess, params)
}

func (d *Dispatcher) execute(ctx context.Context, path string, art *artifact.Artifact, sess identity.Session, params map[string]any) Result {
	cmd, ok := d.Registry.Get(art.Handler)
	if !ok {
		return Err(problems.Newf(problems.KindDispatch, "unknown handler", "%q (registered: %s)", art.Handler, strings.Join(d.Registry.Names(), ", ")))
	}
	svc, err := scopes.ParseService(art.Service)
	if err != nil {
		return Err(problems.New(problems.KindDispatch, "invalid artifact", err))
	}
	if missing := sess.Effective().Missing(cmd.RequiredScopes(svc)); len(missing) > 0 {
		return Err(problems.Newf(problems.KindAuth, "session lacks scopes", "%s", strings.Join(missing, ", ")))
	}
	bound, err := d.collect(ctx, art, params)
	if err != nil {
		return Err(err)
	}
	var payload map[string]any
	err = middleware.Recover(d.Log, func() error {
		var rerr error
		payload, rerr = cmd.Run(ctx, Invocation{Path: path, Artifact: art, Params: bound, Session: sess})
		return rerr
	})
	if err != nil {
		var p *problems.Problem
		if !errors.As(err, &p) {
			err = problems.Dispatch(err)
		}
		return Err(err)
	}
	return Ok(payload)
}

// collect binds prompt answers into a copy of params. Keys given up front
// are not asked for.
func (d *Dispatcher) collect(ctx context.Context, art *artifact.Artifact, params map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(params)+len(art.Prompts))
	for k, v := range params {
		out[k] = v
	}
	for _, p := range art.Prompts {
		if v, ok := out[p.Key]; ok && v != nil {
			continue
		}
		if d.Prompter == nil {
			if err := p.Validate(p.Default); err != nil {
				return nil, problems.New(problems.KindDispatch, "missing input", err)
			}
			out[p.Key] = p.Default
			continue
		}
		var prev error
		answered := false
		for attempt := 0; attempt < maxAttempts && !answered; attempt++ {
			ans, err := d.Prompter.Ask(ctx, p, prev)
			if err != nil {
				return nil, problems.New(problems.KindDispatch, "input aborted", err)
			}
			if strings.TrimSpace(ans) == "" {
				ans = p.Default
			}
			if prev = p.Validate(ans); prev == nil {
				out[p.Key] = ans
				answered = true
			}
		}
		if !answered {
			return nil, problems.New(problems.KindDispatch, "invalid input", prev)
		}
	}
	return out, nil
}

// load returns the verified artifact for path. Only payloads that fetched,
// verified and parsed are cached.
func (d *Dispatcher) load(ctx context.Context, path string) (*artifact.Artifact, error) {
	if body, ok := d.Cache.Get(ctx, path); ok {
		d.lookup("hit")
		a, err := artifact.Parse(body)
		if err == nil {
			return a, nil
		}
		d.Log.Warnw("cached artifact unreadable, refetching", "path", path, "err", err)
	} else {
		d.lookup("miss")
	}
	raw, err := d.Source.Fetch(ctx, path)
	if err != nil {
		return nil, err
	}
	payload, err := d.Verifier.Verify(ctx, path, raw)
	if err != nil {
		return nil, err
	}
	a, err := artifact.Parse(payload)
	if err != nil {
		return nil, problems.Fetch(path, err)
	}
	d.Cache.Put(ctx, path, payload)
	d.Log.Infow("artifact loaded", "path", path, "name", a.Name, "version", a.Version)
	return a, nil
}

// ClearCache drops every cached artifact; the next Invoke of any path
// fetches again.
func (d *Dispatcher) ClearCache(ctx context.Context) error {
	if err := d.Cache.Purge(ctx); err != nil {
		return fmt.Errorf("purge artifact cache: %w", err)
	}
	d.Log.Infow("artifact cache cleared")
	return nil
}

func (d *Dispatcher) lookup(result string) {
	if d.Metrics != nil {
		d.Metrics.CacheLookups.WithLabelValues(result).Inc()
	}
}

func (d *Dispatcher) facts() map[string]string {
	if d.Facts == nil {
		return nil
	}
	return d.Facts()
}

func (d *Dispatcher) record(ctx context.Context, runID, path string, art *artifact.Artifact, sess identity.Session, start time.Time, res Result) {
	elapsed := d.now().Sub(start)
	service := ""
	name := path
	if art != nil {
		service, name = art.Service, art.Name
	}
	if d.Metrics != nil {
		d.Metrics.Dispatches.WithLabelValues(telemetry.Outcome(res.OK())).Inc()
		d.Metrics.DispatchDuration.WithLabelValues(service).Observe(elapsed.Seconds())
	}
	if d.Journal == nil || sess.TenantID == "" {
		return
	}
	e := journal.Entry{
		RunID:     runID,
		TenantID:  sess.TenantID,
		Principal: sess.Principal,
		Action:    name,
		Path:      path,
		Service:   service,
		Status:    "ok",
		StartedAt: start,
		Duration:  elapsed,
	}
	if !res.OK() {
		e.Status = "error"
		e.ProblemType = problems.Type(string(res.Kind()))
		e.Detail = res.Reason()
	}
	if err := d.Journal.Record(ctx, e); err != nil {
		d.Log.Warnw("journal record failed", "run", runID, "err", err)
	}
}
