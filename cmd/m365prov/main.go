package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"m365prov/internal/app"
	"m365prov/internal/catalog"
	"m365prov/internal/dispatch"
	"m365prov/internal/prereq"
	"m365prov/pkg/config"
	"m365prov/pkg/logger"
	"m365prov/pkg/middleware"
	"m365prov/pkg/scopes"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	os.Exit(execute())
}

func execute() int {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var (
		branch     string
		tenant     string
		authMode   string
		statusAddr string
		logFile    string
	)
	cfg := config.Load()

	// flags override env and .env
	apply := func(cmd *cobra.Command) {
		f := cmd.Flags()
		if f.Changed("branch") {
			cfg.Branch = branch
		}
		if f.Changed("tenant") {
			cfg.TenantID = tenant
		}
		if f.Changed("auth") {
			cfg.AuthMode = authMode
		}
		if f.Changed("status-addr") {
			cfg.StatusAddr = statusAddr
		}
		if f.Changed("log-file") {
			cfg.LogFile = logFile
		}
	}

	withApp := func(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
		apply(cmd)
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		middleware.InitTracing()
		defer middleware.ShutdownTracing(context.Background())

		log := logger.New(cfg.Env, cfg.LogFile)
		defer func() { _ = log.Sync() }()

		a, err := app.New(ctx, cfg, log, app.Options{In: cmd.InOrStdin(), Out: cmd.OutOrStdout()})
		if err != nil {
			return err
		}
		defer a.Close(context.Background())
		return fn(ctx, a)
	}

	root := &cobra.Command{
		Use:           "m365prov",
		Short:         "Interactive Microsoft 365 tenant provisioning console",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app.App) error {
				return a.Run(ctx)
			})
		},
	}
	pf := root.PersistentFlags()
	pf.StringVar(&branch, "branch", cfg.Branch, "artifact branch: main or test")
	pf.StringVar(&tenant, "tenant", cfg.TenantID, "tenant id or domain to sign in to")
	pf.StringVar(&authMode, "auth", cfg.AuthMode, "sign-in mode: browser or device")
	pf.StringVar(&statusAddr, "status-addr", cfg.StatusAddr, "serve /healthz, /metrics and /state on this address")
	pf.StringVar(&logFile, "log-file", cfg.LogFile, `log destination ("-" for stderr)`)

	root.AddCommand(
		&cobra.Command{
			Use:   "probe",
			Short: "Sign in, check tenant prerequisites and exit",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return withApp(cmd, func(ctx context.Context, a *app.App) error {
					sess, err := a.Sessions.Connect(ctx, scopes.Baseline())
					if err != nil {
						return err
					}
					defer a.Sessions.Disconnect(ctx)
					out := cmd.OutOrStdout()
					fmt.Fprintf(out, "Tenant %s (%s)\n", sess.TenantID, sess.Principal)
					a.Machine.Probe(ctx)
					for _, r := range a.Machine.Prerequisites() {
						fmt.Fprintf(out, "  %-20s %s\n", r.Title, r.Status)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "commands",
			Short: "List menu actions, their artifacts and prerequisites",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				m := prereq.NewMachine(nil, logger.Nop(), nil)
				out := cmd.OutOrStdout()
				for _, svc := range scopes.Services {
					fmt.Fprintf(out, "%s\n", svc)
					for _, a := range catalog.ForService(svc) {
						line := fmt.Sprintf("  %-30s %s", a.Title, a.Path)
						if reqs := m.Requirements(a.Step); len(reqs) > 0 {
							line += "  needs"
							for _, r := range reqs {
								line += " " + string(r.Name)
							}
						}
						fmt.Fprintln(out, line)
					}
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print version",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "m365prov %s (%s) handlers: %v\n", version, commit, handlerNames())
			},
		},
	)
	return root
}

func handlerNames() []string {
	r, err := dispatch.NewRegistry(
		dispatch.NewGraphCommand("", nil, nil, logger.Nop()),
		dispatch.NewExchangeCommand("", nil, nil, logger.Nop()),
	)
	if err != nil {
		return nil
	}
	return r.Names()
}
