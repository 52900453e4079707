package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
)

type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

// RequestToken returns the bearer credential of a handshake: the Authorization
// header first, then the "token" query parameter for clients that cannot set headers.
func RequestToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}

// NewAuthMiddleware admits a request only when it carries a valid token, and
// records the token's identity in the request metadata. Nothing downstream runs
// for a rejected request.
func NewAuthMiddleware(logger *slog.Logger, verifier TokenVerifier) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {

			// couldn't extract metadata from request so something went wrong with previous middlewares
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok {
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}

			identity, err := verifier.Verify(RequestToken(r))
			switch {
			case err == nil:
			case errors.Is(err, auth.ErrMissingServerSecret):
				// a deployment problem, not the client's fault
				logger.Error("Rejecting connection: no JWT secret configured", slog.String("ip", reqMeta.IP))
				http.Error(w, auth.ErrMissingServerSecret.Error(), http.StatusInternalServerError)
				return
			case errors.Is(err, auth.ErrMissingToken):
				logger.Warn("Token missing in request", slog.String("ip", reqMeta.IP))
				http.Error(w, auth.ErrMissingToken.Error(), http.StatusUnauthorized)
				return
			default:
				logger.Warn("Invalid token presented", slog.String("ip", reqMeta.IP), slog.Any("error", err))
				http.Error(w, auth.ErrInvalidToken.Error(), http.StatusUnauthorized)
				return
			}

			reqMeta.Identity = identity
			next.ServeHTTP(w, r)
		})
	}
}
