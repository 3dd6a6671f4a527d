package shell

import (
	"bytes"
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m365prov/internal/dispatch"
	"m365prov/internal/prereq"
	"m365prov/internal/router"
	"m365prov/pkg/artifact"
	"m365prov/pkg/identity"
	"m365prov/pkg/identity/identitytest"
	"m365prov/pkg/journal"
	"m365prov/pkg/logger"
	"m365prov/pkg/problems"
)

type emptyTenant struct{}

func (emptyTenant) List(context.Context, string, url.Values) ([]any, error) { return nil, nil }

type fakeInvoker struct {
	paths   []string
	fail    map[string]error
	cleared int
}

func (f *fakeInvoker) Invoke(_ context.Context, path string, _ map[string]any) dispatch.Result {
	f.paths = append(f.paths, path)
	if err, ok := f.fail[path]; ok {
		return dispatch.Err(err)
	}
	return dispatch.Ok(map[string]any{})
}

func (f *fakeInvoker) ClearCache(context.Context) error {
	f.cleared++
	return nil
}

type fixture struct {
	shell   *Shell
	out     *bytes.Buffer
	inv     *fakeInvoker
	auth    *identitytest.Authenticator
	manager *identity.Manager
	machine *prereq.Machine
}

func newFixture(input string) *fixture {
	log := logger.Nop()
	auth := identitytest.New()
	mgr := identity.NewManager(auth.Factory(), log)
	machine := prereq.NewMachine(emptyTenant{}, log, nil)
	inv := &fakeInvoker{fail: map[string]error{}}
	out := &bytes.Buffer{}
	sh := New(Deps{
		Console:    NewConsole(strings.NewReader(input), out),
		Log:        log,
		Sessions:   mgr,
		Router:     router.New(mgr, router.Exact, log, nil),
		Dispatcher: inv,
		Machine:    machine,
		Journal:    journal.NewMemoryStore(log, 0),
		Branch:     "main",
	})
	return &fixture{shell: sh, out: out, inv: inv, auth: auth, manager: mgr, machine: machine}
}

func lines(ls ...string) string { return strings.Join(ls, "\n") + "\n" }

func TestGatedActionRefused(t *testing.T) {
	// connect, Entra, Conditional Access, back, quit
	f := newFixture(lines("1", "2", "2", "0", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	out := f.out.String()
	assert.Contains(t, out, "[ ] Conditional Access Policies  requires: Security Groups")
	assert.Contains(t, out, "Conditional Access Policies requires: Security Groups.")
	assert.Empty(t, f.inv.paths, "nothing fetched or dispatched")
}

func TestSuccessUnlocksDependentAction(t *testing.T) {
	// connect, Entra, Security Groups, Conditional Access, back, quit
	f := newFixture(lines("1", "2", "1", "2", "0", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	assert.Equal(t, []string{"entra/Security-Groups.yaml", "entra/CA-Policies.yaml"}, f.inv.paths)
	assert.Contains(t, f.out.String(), "[x] Conditional Access Policies")
	assert.True(t, f.machine.IsSatisfied("ConditionalAccess"))
}

func TestFailedActionReportedAndLoopContinues(t *testing.T) {
	f := newFixture(lines("1", "4", "1", "0", "9", "0"))
	f.inv.fail["exchange/Distribution-Lists.yaml"] = problems.Fetch("exchange/Distribution-Lists.yaml", errors.New("GET: 404 Not Found"))
	require.NoError(t, f.shell.Run(context.Background()))

	out := f.out.String()
	assert.Contains(t, out, "Distribution Lists failed: artifact unavailable: exchange/Distribution-Lists.yaml: GET: 404 Not Found")
	assert.Contains(t, out, "Status")
	assert.False(t, f.machine.IsSatisfied("ConditionalAccess"))
}

func TestUnimplementedNotYetAvailable(t *testing.T) {
	f := newFixture(lines("1", "7", "1", "0", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	out := f.out.String()
	assert.Contains(t, out, "[-] Retention Policies  not yet available")
	assert.Contains(t, out, "Retention Policies is not yet available.")
	assert.Empty(t, f.inv.paths)
}

func TestActionWithoutSession(t *testing.T) {
	f := newFixture(lines("4", "2", "0", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	assert.Contains(t, f.out.String(), "Not connected. Choose 1) Connect first.")
	assert.Empty(t, f.inv.paths)
	assert.Empty(t, f.auth.Requests())
}

func TestScopeSwitchPerService(t *testing.T) {
	// connect, Exchange DL twice, then Intune Device Groups
	f := newFixture(lines("1", "4", "1", "2", "0", "3", "1", "0", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	assert.Len(t, f.auth.Requests(), 3, "baseline, exchange, intune")
	assert.Len(t, f.inv.paths, 3)
}

func TestReconnectKeepsBaselineScopes(t *testing.T) {
	// connect, SharePoint External Sharing, back, reconnect, quit
	f := newFixture(lines("1", "5", "1", "0", "1", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	reqs := f.auth.Requests()
	require.Len(t, reqs, 3)
	assert.NotContains(t, reqs[1], "https://graph.microsoft.com/Group.Read.All")
	assert.Contains(t, reqs[2], "https://graph.microsoft.com/Group.Read.All")
	assert.Contains(t, reqs[2], "https://graph.microsoft.com/Sites.FullControl.All")
}

func TestQuitDisconnects(t *testing.T) {
	f := newFixture(lines("1", "0"))
	require.NoError(t, f.shell.Run(context.Background()))

	_, ok := f.manager.CurrentSession()
	assert.False(t, ok)
	assert.Equal(t, 1, f.auth.SignOuts())
	assert.Contains(t, f.out.String(), "Disconnected.")
}

func TestEOFQuits(t *testing.T) {
	f := newFixture("1\n2\n")
	require.NoError(t, f.shell.Run(context.Background()))
	_, ok := f.manager.CurrentSession()
	assert.False(t, ok)
}

func TestRefreshCache(t *testing.T) {
	f := newFixture(lines("8", "0"))
	require.NoError(t, f.shell.Run(context.Background()))
	assert.Equal(t, 1, f.inv.cleared)
	assert.Contains(t, f.out.String(), "Artifact cache cleared")
}

func TestConnectFailure(t *testing.T) {
	f := newFixture(lines("1", "0"))
	f.auth.Err = errors.New("user cancelled")
	require.NoError(t, f.shell.Run(context.Background()))
	assert.Contains(t, f.out.String(), "Connection failed: authentication failed: user cancelled")
}

func TestStatusShowsRuns(t *testing.T) {
	f := newFixture(lines("1", "9", "0"))
	require.NoError(t, f.shell.Run(context.Background()))
	out := f.out.String()
	assert.Contains(t, out, "Session:  admin@contoso.onmicrosoft.com @ 11111111-2222-3333-4444-555555555555")
	assert.Contains(t, out, "[-] Sensitivity Labels (unimplemented)")
	assert.Contains(t, out, "[ ] Security Groups (not met)")
}

func TestInvalidSelection(t *testing.T) {
	f := newFixture(lines("x", "42", "0"))
	require.NoError(t, f.shell.Run(context.Background()))
	out := f.out.String()
	assert.Contains(t, out, `Invalid selection "x"`)
	assert.Contains(t, out, "Invalid selection 42")
}

func TestConsoleAsk(t *testing.T) {
	out := &bytes.Buffer{}
	c := NewConsole(strings.NewReader("\nsales\n"), out)

	ans, err := c.Ask(context.Background(), artifact.Prompt{Key: "alias", Label: "Alias", Default: "dl"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "", ans)
	assert.Contains(t, out.String(), "Alias [dl]: ")

	ans, err = c.Ask(context.Background(), artifact.Prompt{Key: "alias", Secret: true}, errors.New("alias is required"))
	require.NoError(t, err)
	assert.Equal(t, "sales", ans)
	assert.Contains(t, out.String(), "alias is required")

	_, err = c.ReadLine()
	assert.Error(t, err)
}
