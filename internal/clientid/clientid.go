// Package clientid identifies the caller of each request for rate limiting,
// budget accounting, and usage attribution. Identity is declarative: the
// caller names itself via the X-Sentinel-Client header, falling back to the
// remote address. Authentication is out of scope for the gateway.
package clientid

import (
	"context"
	"net"
	"net/http"
	"regexp"
)

type contextKey string

const clientContextKey contextKey = "sentinel_client"

// Header carries the caller-declared client identifier.
const Header = "X-Sentinel-Client"

// Anonymous is used when no identity can be derived at all.
const Anonymous = "anonymous"

var validClientID = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,63}$`)

// ContextWithClient returns ctx annotated with the client id.
func ContextWithClient(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, clientContextKey, id)
}

// FromContext returns the client id set by the middleware, or Anonymous.
func FromContext(ctx context.Context) string {
	if id, ok := ctx.Value(clientContextKey).(string); ok && id != "" {
		return id
	}
	return Anonymous
}

// FromRequest derives the client id for a request: the declared header when
// valid, else the remote host, else Anonymous.
func FromRequest(r *http.Request) string {
	if id := r.Header.Get(Header); id != "" && validClientID.MatchString(id) {
		return id
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil && host != "" {
		return "ip:" + host
	}
	return Anonymous
}

// Middleware resolves the client id and stores it on the request context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := ContextWithClient(r.Context(), FromRequest(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
