package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// TokenSource returns a bearer token for fully qualified resource scopes.
type TokenSource interface {
	Token(ctx context.Context, resourceScopes []string) (string, error)
}

// ScopeFunc yields the scopes to request a token for at call time.
type ScopeFunc func() []string

// Client is a small JSON-over-HTTPS client for Microsoft Graph and the
// Exchange Online admin REST surface.
type Client struct {
	base   string
	scopes ScopeFunc
	tokens TokenSource
	http   *http.Client
}

func New(base string, scopes ScopeFunc, tokens TokenSource, hc *http.Client) *Client {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: strings.TrimRight(base, "/"), scopes: scopes, tokens: tokens, http: hc}
}

func (c *Client) Base() string { return c.base }

// Request is one outbound call.
type Request struct {
	Method  string
	Path    string // relative to the base, or absolute (nextLink)
	Query   url.Values
	Headers map[string]string
	Body    any
}

type Response struct {
	Status int
	Body   any // decoded JSON, nil for empty bodies
	Raw    []byte
}

// APIError is a non-2xx answer. Code/Message come from the Graph error envelope
// when present.
type APIError struct {
	Status    int
	Code      string
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("HTTP %d", e.Status)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.RequestID != "" {
		msg += " (request-id " + e.RequestID + ")"
	}
	return msg
}

func (c *Client) Do(ctx context.Context, in Request) (Response, error) {
	full := in.Path
	if !strings.HasPrefix(full, "http://") && !strings.HasPrefix(full, "https://") {
		full = c.base + "/" + strings.TrimLeft(in.Path, "/")
	}
	if enc := in.Query.Encode(); enc != "" {
		if strings.Contains(full, "?") {
			full += "&" + enc
		} else {
			full += "?" + enc
		}
	}
	var body io.Reader = http.NoBody
	if in.Body != nil {
		bb, err := json.Marshal(in.Body)
		if err != nil {
			return Response{}, fmt.Errorf("encode body: %w", err)
		}
		body = bytes.NewReader(bb)
	}
	method := strings.ToUpper(in.Method)
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, full, body)
	if err != nil {
		return Response{}, err
	}
	if c.tokens != nil {
		var sc []string
		if c.scopes != nil {
			sc = c.scopes()
		}
		tok, err := c.tokens.Token(ctx, sc)
		if err != nil {
			return Response{}, err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	req.Header.Set("Accept", "application/json")
	if in.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range in.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	out := Response{Status: resp.StatusCode, Raw: raw}
	if len(bytes.TrimSpace(raw)) > 0 {
		_ = json.Unmarshal(raw, &out.Body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode, RequestID: resp.Header.Get("request-id")}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(raw, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return out, apiErr
	}
	return out, nil
}

func (c *Client) Get(ctx context.Context, path string, query url.Values) (any, error) {
	resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: path, Query: query})
	return resp.Body, err
}

// List collects the "value" arrays of a collection, following @odata.nextLink.
func (c *Client) List(ctx context.Context, path string, query url.Values) ([]any, error) {
	var out []any
	next := path
	q := query
	for next != "" {
		resp, err := c.Do(ctx, Request{Method: http.MethodGet, Path: next, Query: q})
		if err != nil {
			return nil, err
		}
		page, _ := resp.Body.(map[string]any)
		if vals, ok := page["value"].([]any); ok {
			out = append(out, vals...)
		}
		next, _ = page["@odata.nextLink"].(string)
		q = nil // nextLink already carries the query
	}
	return out, nil
}

// ODataQuote escapes a literal for use inside an OData $filter string.
func ODataQuote(s string) string { return "'" + strings.ReplaceAll(s, "'", "''") + "'" }
