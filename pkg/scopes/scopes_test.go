package scopes

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_EqualIgnoresOrderCaseAndDuplicates(t *testing.T) {
	a := New("Group.ReadWrite.All", "User.Read.All", "User.Read.All")
	b := New("user.read.all", "https://graph.microsoft.com/Group.ReadWrite.All")

	assert.True(t, a.Equal(b))
	assert.True(t, b.Equal(a))
	assert.Equal(t, 2, a.Len())
}

func TestSet_EqualDetectsSuperset(t *testing.T) {
	a := New("User.Read.All")
	b := New("User.Read.All", "Group.Read.All")

	assert.False(t, a.Equal(b))
	assert.True(t, a.IsSubsetOf(b))
	assert.True(t, b.Contains(a))
	assert.False(t, b.IsSubsetOf(a))
}

func TestSet_Missing(t *testing.T) {
	granted := New("User.Read.All")
	required := New("User.Read.All", "Policy.Read.All", "Group.Read.All")

	assert.Equal(t, []string{"Group.Read.All", "Policy.Read.All"}, granted.Missing(required))
	assert.Empty(t, required.Missing(granted))
}

func TestParse_ScopeClaim(t *testing.T) {
	s := Parse("  openid profile Group.Read.All  User.Read ")

	assert.Equal(t, 4, s.Len())
	assert.True(t, s.Has("group.read.all"))
	assert.False(t, s.Has("Group.ReadWrite.All"))
}

func TestSet_Qualified(t *testing.T) {
	s := New("offline_access", "Group.Read.All")

	assert.Equal(t, []string{"https://graph.microsoft.com/Group.Read.All", "offline_access"}, s.Qualified(GraphResource))
}

func TestSet_ZeroValue(t *testing.T) {
	var s Set

	assert.Equal(t, 0, s.Len())
	assert.True(t, s.Equal(New()))
	assert.False(t, s.Has("User.Read"))
	assert.Equal(t, "User.Read", s.Union(New("User.Read")).String())
}

func TestRequired_EveryServiceHasScopes(t *testing.T) {
	for _, svc := range Services {
		assert.NotZero(t, Required(svc).Len(), string(svc))
	}
}

func TestParseService(t *testing.T) {
	svc, err := ParseService("intune")
	assert.NoError(t, err)
	assert.Equal(t, Intune, svc)

	_, err = ParseService("teams")
	assert.Error(t, err)
}
