package testutil

import (
	"net/http"
	"time"

	"equilex/pkg/requestcontext"
)

// WithPrincipal injects an authenticated principal into the request context,
// simulating what the auth middleware does for a valid bearer token.
func WithPrincipal(req *http.Request, principal string) *http.Request {
	ctx := requestcontext.WithPrincipal(req.Context(), principal)
	return req.WithContext(ctx)
}

// WithRequestTime pins the request-scoped clock, simulating the request-time
// middleware.
func WithRequestTime(req *http.Request, t time.Time) *http.Request {
	ctx := requestcontext.WithTime(req.Context(), t)
	return req.WithContext(ctx)
}

// WithRequestID injects a request ID into the request context.
func WithRequestID(req *http.Request, requestID string) *http.Request {
	ctx := requestcontext.WithRequestID(req.Context(), requestID)
	return req.WithContext(ctx)
}
