package graph

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticTokens struct {
	seen [][]string
	err  error
}

func (s *staticTokens) Token(_ context.Context, sc []string) (string, error) {
	s.seen = append(s.seen, sc)
	return "tok", s.err
}

func TestClient_DoSendsBearerAndJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, "/v1.0/groups", r.URL.Path)
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "SG-Admins", body["displayName"])
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":"g1"}`))
	}))
	defer srv.Close()

	tokens := &staticTokens{}
	c := New(srv.URL, func() []string { return []string{"https://graph.microsoft.com/Group.ReadWrite.All"} }, tokens, srv.Client())
	resp, err := c.Do(context.Background(), Request{Method: "post", Path: "/v1.0/groups", Body: map[string]any{"displayName": "SG-Admins"}})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, "g1", resp.Body.(map[string]any)["id"])
	assert.Equal(t, [][]string{{"https://graph.microsoft.com/Group.ReadWrite.All"}}, tokens.seen)
}

func TestClient_DoParsesErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("request-id", "abc")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":"Authorization_RequestDenied","message":"Insufficient privileges"}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil, srv.Client())
	_, err := c.Do(context.Background(), Request{Path: "/v1.0/groups"})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.Status)
	assert.Equal(t, "Authorization_RequestDenied", apiErr.Code)
	assert.Contains(t, err.Error(), "request-id abc")
}

func TestClient_ListFollowsNextLink(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("page") == "2" {
			_, _ = w.Write([]byte(`{"value":[{"id":"b"}]}`))
			return
		}
		assert.Equal(t, "displayName eq 'x'", r.URL.Query().Get("$filter"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value":           []any{map[string]any{"id": "a"}},
			"@odata.nextLink": srv.URL + "/v1.0/groups?page=2",
		})
	}))
	defer srv.Close()

	c := New(srv.URL, nil, nil, srv.Client())
	items, err := c.List(context.Background(), "/v1.0/groups", url.Values{"$filter": {"displayName eq 'x'"}})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "b", items[1].(map[string]any)["id"])
}

func TestClient_TokenFailureStopsRequest(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))
	defer srv.Close()

	c := New(srv.URL, nil, &staticTokens{err: errors.New("expired")}, srv.Client())
	_, err := c.Get(context.Background(), "/v1.0/me", nil)
	assert.EqualError(t, err, "expired")
	assert.False(t, called)
}

func TestODataQuote(t *testing.T) {
	assert.Equal(t, "'O''Brien'", ODataQuote("O'Brien"))
}
