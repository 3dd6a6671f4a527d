package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m365prov/pkg/scopes"
)

func TestEveryServiceHasActions(t *testing.T) {
	for _, svc := range scopes.Services {
		assert.NotEmpty(t, ForService(svc), string(svc))
	}
}

func TestStepsAndPathsUnique(t *testing.T) {
	steps := map[string]bool{}
	paths := map[string]bool{}
	for _, a := range All() {
		assert.False(t, steps[a.Step], a.Step)
		assert.False(t, paths[a.Path], a.Path)
		steps[a.Step] = true
		paths[a.Path] = true
	}
}

func TestByPath(t *testing.T) {
	a, ok := ByPath("entra/CA-Policies.yaml")
	require.True(t, ok)
	assert.Equal(t, "ConditionalAccess", a.Step)
	assert.Equal(t, scopes.Entra, a.Service)

	_, ok = ByPath("entra/CA-Policies.ps1")
	assert.False(t, ok)
}
