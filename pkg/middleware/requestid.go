package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type ctxKey string

const CtxKeyRequestID ctxKey = "reqid"

// WithRequestID pins the client-request-id used for calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyRequestID, id)
}

func RequestIDFrom(ctx context.Context) string {
	if v, ok := ctx.Value(CtxKeyRequestID).(string); ok {
		return v
	}
	return ""
}

type requestIDTransport struct {
	next http.RoundTripper
}

// RequestID stamps outgoing requests with a client-request-id header (the
// correlation header Graph and Exchange echo back in errors).
func RequestID(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &requestIDTransport{next: next}
}

func (t *requestIDTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("client-request-id") != "" {
		return t.next.RoundTrip(r)
	}
	id := RequestIDFrom(r.Context())
	if id == "" {
		id = uuid.NewString()
	}
	r = r.Clone(r.Context())
	r.Header.Set("client-request-id", id)
	return t.next.RoundTrip(r)
}
