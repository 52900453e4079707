package middleware

import (
	"context"
	"net"
	"net/http"

	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/google/uuid"
)

type contextKey string

const reqMetaKey = contextKey("r-metadata")

// RequestIDHeader carries a caller-supplied request id; one is generated when absent.
const RequestIDHeader = "X-Request-ID"

// RequestMetadata is filled in as the request moves down the chain. Identity is
// the zero value until the auth middleware admits the request.
type RequestMetadata struct {
	RequestID string
	IP        string
	Identity  auth.Identity
}

func ReqMetadataFrom(ctx context.Context) (*RequestMetadata, bool) {
	reqMeta, ok := ctx.Value(reqMetaKey).(*RequestMetadata)
	return reqMeta, ok
}

// RequestMetadataMiddleware must be the first middleware in every chain.
func RequestMetadataMiddleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}
			reqID := r.Header.Get(RequestIDHeader)
			if reqID == "" {
				reqID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, reqID)

			reqMeta := &RequestMetadata{RequestID: reqID, IP: ip}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), reqMetaKey, reqMeta)))
		})
	}
}
