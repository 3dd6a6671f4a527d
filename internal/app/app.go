package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"m365prov/internal/dispatch"
	"m365prov/internal/policy"
	"m365prov/internal/prereq"
	"m365prov/internal/router"
	"m365prov/internal/shell"
	"m365prov/internal/status"
	"m365prov/pkg/artifact"
	"m365prov/pkg/config"
	"m365prov/pkg/db"
	"m365prov/pkg/graph"
	"m365prov/pkg/identity"
	"m365prov/pkg/journal"
	"m365prov/pkg/middleware"
	"m365prov/pkg/scopes"
	"m365prov/pkg/telemetry"
)

const (
	artifactTTL    = 24 * time.Hour
	journalEntries = 500
)

// App is the explicit context every component is wired through. Nothing in
// the console reads package-level state.
type App struct {
	Cfg     config.Config
	Log     *zap.SugaredLogger
	Metrics *telemetry.Metrics

	HTTP       *http.Client
	Sessions   *identity.Manager
	Router     *router.Router
	Machine    *prereq.Machine
	Dispatcher *dispatch.Dispatcher
	Journal    journal.Store
	Guard      *policy.Guard
	Console    *shell.Console
	Shell      *shell.Shell
	Status     *status.Server

	pool  *pgxpool.Pool
	redis *redis.Client
}

// Options lets callers and tests replace the pieces that talk to the
// outside world.
type Options struct {
	In      io.Reader
	Out     io.Writer
	Factory identity.Factory
	Source  artifact.Source
}

// New wires the console from cfg. Optional backends (postgres, redis) fall
// back to in-process implementations when they are not configured.
func New(ctx context.Context, cfg config.Config, log *zap.SugaredLogger, opts Options) (*App, error) {
	a := &App{Cfg: cfg, Log: log, Metrics: telemetry.NewMetrics()}
	a.HTTP = &http.Client{
		Transport: middleware.RequestID(middleware.Transport(nil)),
		Timeout:   cfg.HTTPTimeout,
	}

	factory := opts.Factory
	if factory == nil {
		factory = identity.NewAzureFactory(cfg, opts.Out)
	}
	a.Sessions = identity.NewManager(factory, log.Named("identity"))

	policyKind, err := router.ParsePolicy(cfg.ScopePolicy)
	if err != nil {
		return nil, err
	}
	a.Router = router.New(a.Sessions, policyKind, log.Named("router"), a.Metrics)

	probes := graph.New(cfg.GraphBaseURL+"/v1.0", a.graphScopes, a.Sessions, a.HTTP)
	a.Machine = prereq.NewMachine(probes, log.Named("prereq"), a.Metrics)

	if err := a.openJournal(ctx); err != nil {
		a.Close(ctx)
		return nil, err
	}
	cache, err := a.openCache(ctx)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	src := opts.Source
	if src == nil {
		src = artifact.NewFetcher(cfg.RepoBase, cfg.Branch, a.HTTP, log.Named("fetch"), a.Metrics)
	}
	verifier, err := artifact.NewVerifier(cfg.VerifyMode, src, cfg.TrustJWKS)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	if a.Guard, err = policy.Load(ctx, cfg.PolicyFile, log.Named("guard")); err != nil {
		a.Close(ctx)
		return nil, err
	}

	registry, err := dispatch.NewRegistry(
		dispatch.NewGraphCommand(cfg.GraphBaseURL+"/v1.0", a.Sessions, a.HTTP, log.Named("graph")),
		dispatch.NewExchangeCommand(cfg.ExchangeBaseURL, a.Sessions, a.HTTP, log.Named("exchange")),
	)
	if err != nil {
		a.Close(ctx)
		return nil, err
	}

	a.Console = shell.NewConsole(opts.In, opts.Out)
	a.Dispatcher = dispatch.New(dispatch.Options{
		Log:      log.Named("dispatch"),
		Source:   src,
		Verifier: verifier,
		Cache:    cache,
		Registry: registry,
		Sessions: a.Sessions,
		Prompter: a.Console,
		Guard:    a.Guard,
		Journal:  a.Journal,
		Metrics:  a.Metrics,
		Branch:   cfg.Branch,
		Facts:    a.facts,
	})
	a.Shell = shell.New(shell.Deps{
		Console:    a.Console,
		Log:        log.Named("shell"),
		Sessions:   a.Sessions,
		Router:     a.Router,
		Dispatcher: a.Dispatcher,
		Machine:    a.Machine,
		Journal:    a.Journal,
		Branch:     cfg.Branch,
	})

	if cfg.StatusAddr != "" {
		a.Status = status.New(log.Named("status"), a.Metrics.Handler(), a.State)
		if _, err := a.Status.Start(cfg.StatusAddr); err != nil {
			a.Close(ctx)
			return nil, fmt.Errorf("status server: %w", err)
		}
	}
	log.Infow("console ready",
		"branch", cfg.Branch, "verify", cfg.VerifyMode, "cache", cfg.CacheBackend,
		"scope_policy", policyKind, "guard", a.Guard.Enabled())
	return a, nil
}

func (a *App) openJournal(ctx context.Context) error {
	pool, err := db.Connect(ctx, a.Cfg, a.Log)
	if err != nil {
		return err
	}
	if pool == nil {
		a.Journal = journal.NewMemoryStore(a.Log.Named("journal"), journalEntries)
		return nil
	}
	a.pool = pool
	if err := journal.EnsureSchema(ctx, pool); err != nil {
		return fmt.Errorf("journal schema: %w", err)
	}
	a.Journal = journal.NewPostgresStore(pool, a.Log.Named("journal"))
	return nil
}

func (a *App) openCache(ctx context.Context) (artifact.Cache, error) {
	if a.Cfg.CacheBackend == "redis" {
		rdb, err := db.Redis(ctx, a.Cfg, a.Log)
		if err != nil {
			return nil, err
		}
		if rdb != nil {
			a.redis = rdb
			return artifact.NewRedisCache(rdb, a.Cfg.Branch, artifactTTL, a.Log.Named("cache")), nil
		}
	}
	return artifact.NewMemoryCache(a.Cfg.CacheSize)
}

// graphScopes requests tokens for the session's scopes plus the baseline,
// so probes can still list groups after a service menu narrowed the session.
func (a *App) graphScopes() []string {
	sess, ok := a.Sessions.CurrentSession()
	if !ok {
		return scopes.Baseline().Qualified(scopes.GraphResource)
	}
	return sess.Scopes.Union(scopes.Baseline()).Qualified(scopes.GraphResource)
}

func (a *App) facts() map[string]string {
	snap := a.Machine.Snapshot()
	out := make(map[string]string, len(snap))
	for n, st := range snap {
		out[string(n)] = st.String()
	}
	return out
}

// State is the document served at /state.
func (a *App) State() any {
	doc := map[string]any{
		"branch":        a.Cfg.Branch,
		"channel":       a.Cfg.Channel(),
		"cache":         a.Cfg.CacheBackend,
		"verify":        a.Cfg.VerifyMode,
		"scope_policy":  a.Router.Policy(),
		"connected":     false,
		"prerequisites": a.facts(),
	}
	if sess, ok := a.Sessions.CurrentSession(); ok {
		doc["connected"] = true
		doc["tenant_id"] = sess.TenantID
		doc["principal"] = sess.Principal
		doc["scopes"] = sess.Scopes.Slice()
		doc["expires_on"] = sess.ExpiresOn
	}
	return doc
}

// Run drives the interactive menu until the operator quits.
func (a *App) Run(ctx context.Context) error {
	return a.Shell.Run(ctx)
}

// Close releases backends. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	if a.Status != nil {
		if err := a.Status.Shutdown(ctx); err != nil {
			a.Log.Warnw("status shutdown", "err", err)
		}
	}
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
}
