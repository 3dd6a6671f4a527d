package identity_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m365prov/pkg/identity"
	"m365prov/pkg/identity/identitytest"
	"m365prov/pkg/logger"
	"m365prov/pkg/problems"
	"m365prov/pkg/scopes"
)

func TestManager_ConnectPopulatesSession(t *testing.T) {
	fake := identitytest.New()
	m := identity.NewManager(fake.Factory(), logger.Nop())

	_, ok := m.CurrentSession()
	assert.False(t, ok)

	s, err := m.Connect(context.Background(), scopes.New("User.Read.All", "Group.Read.All"))
	require.NoError(t, err)

	assert.Equal(t, fake.TenantID, s.TenantID)
	assert.Equal(t, fake.Principal, s.Principal)
	assert.True(t, s.Scopes.Equal(scopes.New("group.read.all", "user.read.all")))
	assert.True(t, s.Granted.Has("Group.Read.All"))
	assert.False(t, s.ConnectedAt.IsZero())

	cur, ok := m.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, s.TenantID, cur.TenantID)
	assert.Equal(t, []string{
		"https://graph.microsoft.com/Group.Read.All",
		"https://graph.microsoft.com/User.Read.All",
	}, fake.Requests()[0])
}

func TestManager_ConnectFailureIsAuthError(t *testing.T) {
	fake := identitytest.New()
	fake.Err = errors.New("user canceled")
	m := identity.NewManager(fake.Factory(), logger.Nop())

	_, err := m.Connect(context.Background(), scopes.New("User.Read"))
	require.Error(t, err)
	assert.True(t, problems.Is(err, problems.KindAuth))
	assert.Contains(t, err.Error(), "user canceled")

	_, ok := m.CurrentSession()
	assert.False(t, ok)
}

func TestManager_ReconnectTearsDownFirst(t *testing.T) {
	fake := identitytest.New()
	m := identity.NewManager(fake.Factory(), logger.Nop())
	ctx := context.Background()

	_, err := m.Connect(ctx, scopes.New("User.Read"))
	require.NoError(t, err)

	s, err := m.Reconnect(ctx, scopes.New("User.Read", "Policy.Read.All"))
	require.NoError(t, err)

	assert.Equal(t, 1, fake.SignOuts())
	assert.Equal(t, 2, fake.Builds())
	assert.True(t, s.Scopes.Has("Policy.Read.All"))
}

func TestManager_ReconnectSurvivesSignOutFailure(t *testing.T) {
	fake := identitytest.New()
	fake.SignOutErr = errors.New("cache locked")
	m := identity.NewManager(fake.Factory(), logger.Nop())
	ctx := context.Background()

	_, err := m.Connect(ctx, scopes.New("User.Read"))
	require.NoError(t, err)

	_, err = m.Reconnect(ctx, scopes.New("Group.Read.All"))
	assert.NoError(t, err)
	_, ok := m.CurrentSession()
	assert.True(t, ok)
}

func TestManager_ReconnectFailureLeavesNoSession(t *testing.T) {
	fake := identitytest.New()
	m := identity.NewManager(fake.Factory(), logger.Nop())
	ctx := context.Background()

	_, err := m.Connect(ctx, scopes.New("User.Read"))
	require.NoError(t, err)

	fake.Err = errors.New("consent denied")
	_, err = m.Reconnect(ctx, scopes.New("Directory.ReadWrite.All"))
	assert.True(t, problems.Is(err, problems.KindAuth))

	_, ok := m.CurrentSession()
	assert.False(t, ok)
}

func TestManager_TokenRequiresSession(t *testing.T) {
	fake := identitytest.New()
	m := identity.NewManager(fake.Factory(), logger.Nop())
	ctx := context.Background()

	_, err := m.Token(ctx, []string{"https://outlook.office365.com/.default"})
	assert.ErrorIs(t, err, identity.ErrNotConnected)

	_, err = m.Connect(ctx, scopes.New("User.Read"))
	require.NoError(t, err)
	tok, err := m.Token(ctx, []string{"https://outlook.office365.com/.default"})
	require.NoError(t, err)
	assert.NotEmpty(t, tok)

	m.Disconnect(ctx)
	_, ok := m.CurrentSession()
	assert.False(t, ok)
}

// blockingAuth holds Token open until release is closed, like a browser
// sign-in waiting on the operator.
type blockingAuth struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingAuth) Token(ctx context.Context, requested []string) (identity.AccessToken, error) {
	close(b.entered)
	<-b.release
	exp := time.Now().Add(time.Hour)
	raw, err := identitytest.Token("tid-1", "ops@contoso.com", scopes.New(requested...).String(), exp)
	return identity.AccessToken{Token: raw, ExpiresOn: exp}, err
}

func (b *blockingAuth) SignOut(context.Context) error { return nil }

func TestManager_SessionReadableDuringSignIn(t *testing.T) {
	auth := &blockingAuth{entered: make(chan struct{}), release: make(chan struct{})}
	m := identity.NewManager(func() (identity.Authenticator, error) { return auth, nil }, logger.Nop())
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.Connect(ctx, scopes.New("User.Read"))
		done <- err
	}()
	<-auth.entered

	read := make(chan bool, 1)
	go func() {
		_, ok := m.CurrentSession()
		_, err := m.Token(ctx, []string{"https://graph.microsoft.com/User.Read"})
		read <- ok || !errors.Is(err, identity.ErrNotConnected)
	}()
	select {
	case connected := <-read:
		assert.False(t, connected, "no session until sign-in completes")
	case <-time.After(2 * time.Second):
		t.Fatal("session state blocked while sign-in was pending")
	}

	close(auth.release)
	require.NoError(t, <-done)
	s, ok := m.CurrentSession()
	require.True(t, ok)
	assert.Equal(t, "tid-1", s.TenantID)
}

func TestParseClaims(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	raw, err := identitytest.Token("tid-1", "ops@contoso.com", "Group.Read.All User.Read", exp)
	require.NoError(t, err)

	c, err := identity.ParseClaims(raw)
	require.NoError(t, err)
	assert.Equal(t, "tid-1", c.TenantID)
	assert.Equal(t, "ops@contoso.com", c.Principal)
	assert.Equal(t, 2, c.Scopes.Len())
	assert.True(t, exp.Equal(c.Expires))

	_, err = identity.ParseClaims("not-a-jwt")
	assert.Error(t, err)
}
