// Package middleware holds the HTTP handler chain placed in front of the
// websocket upgrade and the job endpoints: request metadata, access logging,
// the token gate and the per-user connection limiter.
package middleware

import "net/http"

type Middleware func(http.Handler) http.Handler

// Chain wraps h so that the first middleware listed sees the request first.
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}
