package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"m365prov/internal/catalog"
	"m365prov/internal/dispatch"
	"m365prov/internal/prereq"
	"m365prov/pkg/identity"
	"m365prov/pkg/journal"
	"m365prov/pkg/scopes"
)

type Sessions interface {
	Connect(ctx context.Context, requested scopes.Set) (identity.Session, error)
	Reconnect(ctx context.Context, requested scopes.Set) (identity.Session, error)
	CurrentSession() (identity.Session, bool)
	Disconnect(ctx context.Context)
}

type Scoper interface {
	EnsureScopes(ctx context.Context, svc scopes.Service) (bool, error)
}

type Invoker interface {
	Invoke(ctx context.Context, path string, params map[string]any) dispatch.Result
	ClearCache(ctx context.Context) error
}

type Deps struct {
	Console    *Console
	Log        *zap.SugaredLogger
	Sessions   Sessions
	Router     Scoper
	Dispatcher Invoker
	Machine    *prereq.Machine
	Journal    journal.Store
	Branch     string
}

// Shell is the numbered-menu loop. It is single threaded: a selected action
// owns the console until it returns.
type Shell struct {
	Deps
	con        *Console
	lastTenant string
}

func New(d Deps) *Shell {
	if d.Log == nil {
		d.Log = zap.NewNop().Sugar()
	}
	return &Shell{Deps: d, con: d.Console}
}

const itemConnect = 1

var (
	itemRefresh = len(scopes.Services) + 2
	itemStatus  = len(scopes.Services) + 3
)

var errQuit = errors.New("quit")

// Run shows the top menu until the operator quits or input ends. An active
// session is disconnected on the way out.
func (s *Shell) Run(ctx context.Context) error {
	defer s.quit(ctx)
	for {
		s.drawTop()
		choice, err := s.con.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if err := s.top(ctx, choice); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			return err
		}
	}
}

func (s *Shell) drawTop() {
	s.con.Println()
	s.con.Title("M365 provisioning console  [branch %s]", s.Branch)
	if sess, ok := s.Sessions.CurrentSession(); ok {
		s.con.Printf("Connected as %s (tenant %s)\n", sess.Principal, sess.TenantID)
	} else {
		s.con.Println(s.con.Muted("Not connected"))
	}
	s.con.Printf("  %d) Connect / reconnect\n", itemConnect)
	for i, svc := range scopes.Services {
		s.con.Printf("  %d) %s\n", i+2, svc)
	}
	s.con.Printf("  %d) Refresh artifact cache\n", itemRefresh)
	s.con.Printf("  %d) Status\n", itemStatus)
	s.con.Println("  0) Quit")
	s.con.Printf("Select: ")
}

func (s *Shell) top(ctx context.Context, choice string) error {
	n, err := strconv.Atoi(choice)
	if err != nil {
		s.con.Warn("Invalid selection %q", choice)
		return nil
	}
	switch {
	case n == 0:
		return errQuit
	case n == itemConnect:
		s.connect(ctx)
	case n >= 2 && n < 2+len(scopes.Services):
		return s.serviceMenu(ctx, scopes.Services[n-2])
	case n == itemRefresh:
		if err := s.Dispatcher.ClearCache(ctx); err != nil {
			s.con.Error("Cache refresh failed: %v", err)
		} else {
			s.con.Success("Artifact cache cleared; actions will be fetched again.")
		}
	case n == itemStatus:
		s.status(ctx)
	default:
		s.con.Warn("Invalid selection %d", n)
	}
	return nil
}

// connect signs in (or re-signs in with the current scopes plus the
// baseline) and probes the tenant's prerequisites.
func (s *Shell) connect(ctx context.Context) {
	var (
		sess identity.Session
		err  error
	)
	if cur, ok := s.Sessions.CurrentSession(); ok {
		// probes list groups, so keep the baseline next to the service scopes
		sess, err = s.Sessions.Reconnect(ctx, cur.Scopes.Union(scopes.Baseline()))
	} else {
		s.con.Println("Signing in...")
		sess, err = s.Sessions.Connect(ctx, scopes.Baseline())
	}
	if err != nil {
		s.con.Error("Connection failed: %v", err)
		return
	}
	if s.lastTenant != "" && s.lastTenant != sess.TenantID {
		s.Machine.Reset()
	}
	s.lastTenant = sess.TenantID
	s.con.Success("Connected to tenant %s as %s", sess.TenantID, sess.Principal)
	s.con.Println("Checking prerequisites...")
	s.Machine.Probe(ctx)
	s.printPrerequisites()
}

func (s *Shell) serviceMenu(ctx context.Context, svc scopes.Service) error {
	actions := catalog.ForService(svc)
	for {
		s.con.Println()
		s.con.Title("%s", svc)
		for i, a := range actions {
			s.con.Printf("  %d) %s\n", i+1, s.actionLine(a))
		}
		s.con.Println("  0) Back")
		s.con.Printf("Select: ")
		choice, err := s.con.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return errQuit
			}
			return err
		}
		n, err := strconv.Atoi(choice)
		switch {
		case err != nil || n < 0 || n > len(actions):
			s.con.Warn("Invalid selection %q", choice)
		case n == 0:
			return nil
		default:
			s.run(ctx, actions[n-1])
		}
	}
}

func (s *Shell) actionLine(a catalog.Action) string {
	switch {
	case s.Machine.Unavailable(a.Step):
		return "[-] " + a.Title + "  " + s.con.Muted("not yet available")
	case !s.Machine.IsSatisfied(a.Step):
		return "[ ] " + a.Title + "  " + s.con.Muted("requires: "+titles(s.Machine.Missing(a.Step)))
	default:
		return "[x] " + a.Title
	}
}

// run gates, routes and dispatches one action.
func (s *Shell) run(ctx context.Context, a catalog.Action) {
	if s.Machine.Unavailable(a.Step) {
		s.con.Warn("%s is not yet available.", a.Title)
		return
	}
	if !s.Machine.IsSatisfied(a.Step) {
		s.con.Warn("%s requires: %s. Run those actions first.", a.Title, titles(s.Machine.Missing(a.Step)))
		return
	}
	if _, err := s.Router.EnsureScopes(ctx, a.Service); err != nil {
		if errors.Is(err, identity.ErrNotConnected) {
			s.con.Warn("Not connected. Choose %d) Connect first.", itemConnect)
		} else {
			s.con.Error("Could not switch permissions for %s: %v", a.Service, err)
		}
		return
	}
	s.con.Title("%s", a.Title)
	s.Log.Infow("action selected", "step", a.Step, "path", a.Path)
	res := s.Dispatcher.Invoke(ctx, a.Path, nil)
	if !res.OK() {
		s.con.Error("%s failed: %s", a.Title, res.Reason())
		return
	}
	s.Machine.RecordSuccess(a.Path)
	s.con.Success("%s completed.", a.Title)
}

func (s *Shell) status(ctx context.Context) {
	s.con.Println()
	s.con.Title("Status")
	sess, ok := s.Sessions.CurrentSession()
	if !ok {
		s.con.Println("Session:  none")
	} else {
		s.con.Printf("Session:  %s @ %s (since %s, token until %s)\n", sess.Principal, sess.TenantID,
			sess.ConnectedAt.Format(time.Kitchen), sess.ExpiresOn.Format(time.Kitchen))
		s.con.Printf("Scopes:   %s\n", sess.Scopes.String())
	}
	s.printPrerequisites()
	if s.Journal == nil || !ok {
		return
	}
	runs, err := s.Journal.Recent(ctx, sess.TenantID, 10)
	if err != nil {
		s.con.Error("Run history unavailable: %v", err)
		return
	}
	if len(runs) == 0 {
		return
	}
	s.con.Println("Recent runs:")
	for _, r := range runs {
		line := fmt.Sprintf("  %s  %-5s  %-30s %s", r.StartedAt.Format("15:04:05"), r.Status, r.Action, r.Duration.Round(time.Millisecond))
		if !r.OK() {
			line += "  " + s.con.Muted(r.Detail)
		}
		s.con.Println(line)
	}
}

func (s *Shell) printPrerequisites() {
	s.con.Println("Prerequisites:")
	for _, r := range s.Machine.Prerequisites() {
		mark := "[ ]"
		switch r.Status {
		case prereq.Met:
			mark = "[x]"
		case prereq.Unimplemented:
			mark = "[-]"
		}
		s.con.Printf("  %s %s (%s)\n", mark, r.Title, r.Status)
	}
}

func (s *Shell) quit(ctx context.Context) {
	if _, ok := s.Sessions.CurrentSession(); ok {
		s.Sessions.Disconnect(ctx)
		s.con.Println("Disconnected.")
	}
	s.con.Println("Bye.")
}

func titles(rs []prereq.Requirement) string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Title
	}
	return strings.Join(out, ", ")
}
