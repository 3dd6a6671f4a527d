package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m365prov/internal/prereq"
	"m365prov/pkg/config"
	"m365prov/pkg/identity/identitytest"
	"m365prov/pkg/logger"
	"m365prov/pkg/scopes"
)

const groupsArtifact = `
name: Security Groups
version: "1.0.0"
service: Entra
handler: graph
steps:
  - name: create
    method: POST
    path: groups
    body:
      displayName: SG-Entra-Admins
      securityEnabled: true
    expect: [201]
`

type tenant struct {
	srv     *httptest.Server
	creates atomic.Int32
}

func newTenant(t *testing.T) *tenant {
	tn := &tenant{}
	mux := http.NewServeMux()
	mux.HandleFunc("/main/entra/Security-Groups.yaml", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(groupsArtifact))
	})
	mux.HandleFunc("/v1.0/groups", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodPost {
			tn.creates.Add(1)
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"id":"g1"}`))
			return
		}
		_, _ = w.Write([]byte(`{"value":[]}`))
	})
	tn.srv = httptest.NewServer(mux)
	t.Cleanup(tn.srv.Close)
	return tn
}

func testConfig(base string) config.Config {
	return config.Config{
		Env:             "test",
		RepoBase:        base,
		Branch:          "main",
		VerifyMode:      "off",
		CacheBackend:    "lru",
		CacheSize:       16,
		ScopePolicy:     "exact",
		GraphBaseURL:    base,
		ExchangeBaseURL: base,
	}
}

func TestApp_EndToEnd(t *testing.T) {
	tn := newTenant(t)
	ctx := context.Background()
	out := &strings.Builder{}
	a, err := New(ctx, testConfig(tn.srv.URL), logger.Nop(), Options{
		In:      strings.NewReader("1\n2\n1\n0\n0\n"),
		Out:     out,
		Factory: identitytest.New().Factory(),
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	require.NoError(t, a.Run(ctx))
	assert.Contains(t, out.String(), "Security Groups completed.")
	assert.Equal(t, int32(1), tn.creates.Load())
	assert.Equal(t, prereq.Met, a.Machine.Snapshot()[prereq.SecurityGroups])

	runs, err := a.Journal.Recent(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].OK())
	assert.Equal(t, "Security Groups", runs[0].Action)
}

func TestApp_RejectsBadConfig(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig("http://127.0.0.1:1")

	cfg.ScopePolicy = "loose"
	_, err := New(ctx, cfg, logger.Nop(), Options{Factory: identitytest.New().Factory()})
	assert.Error(t, err)

	cfg.ScopePolicy = "exact"
	cfg.VerifyMode = "gpg"
	_, err = New(ctx, cfg, logger.Nop(), Options{Factory: identitytest.New().Factory()})
	assert.Error(t, err)
}

func TestApp_StatusServer(t *testing.T) {
	tn := newTenant(t)
	ctx := context.Background()
	cfg := testConfig(tn.srv.URL)
	cfg.StatusAddr = "127.0.0.1:0"
	a, err := New(ctx, cfg, logger.Nop(), Options{
		In:      strings.NewReader(""),
		Out:     &strings.Builder{},
		Factory: identitytest.New().Factory(),
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	srv := httptest.NewServer(a.Status.Handler())
	defer srv.Close()
	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, false, doc["connected"])
	assert.Equal(t, "main", doc["branch"])
	assert.Equal(t, "unimplemented", doc["prerequisites"].(map[string]any)["SensitivityLabels"])
}

func TestApp_ProbeScopesIncludeBaseline(t *testing.T) {
	tn := newTenant(t)
	ctx := context.Background()
	a, err := New(ctx, testConfig(tn.srv.URL), logger.Nop(), Options{
		In:      strings.NewReader(""),
		Out:     &strings.Builder{},
		Factory: identitytest.New().Factory(),
	})
	require.NoError(t, err)
	defer a.Close(ctx)

	_, err = a.Sessions.Connect(ctx, scopes.Required(scopes.SharePoint))
	require.NoError(t, err)
	got := a.graphScopes()
	assert.Contains(t, got, "https://graph.microsoft.com/Group.Read.All")
	assert.Contains(t, got, "https://graph.microsoft.com/Sites.FullControl.All")
}
