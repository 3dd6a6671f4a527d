package status

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"m365prov/pkg/logger"
	"m365prov/pkg/telemetry"
)

func TestHandler(t *testing.T) {
	m := telemetry.NewMetrics()
	m.Dispatches.WithLabelValues("ok").Inc()
	s := New(logger.Nop(), m.Handler(), func() any {
		return map[string]any{"connected": true, "prerequisites": map[string]string{"SecurityGroups": "met"}}
	})
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Contains(t, string(body), `m365prov_dispatches_total{outcome="ok"} 1`)

	resp, err = http.Get(srv.URL + "/state")
	require.NoError(t, err)
	var state map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&state))
	resp.Body.Close()
	assert.Equal(t, true, state["connected"])
	assert.Equal(t, "met", state["prerequisites"].(map[string]any)["SecurityGroups"])
}

func TestStartShutdown(t *testing.T) {
	s := New(logger.Nop(), nil, func() any { return nil })
	addr, err := s.Start("127.0.0.1:0")
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, s.Shutdown(context.Background()))
}
