package middleware

import (
	"log/slog"
	"net/http"

	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
)

const (
	LimitModeReject = "reject"
	LimitModeCycle  = "cycle"
)

// UserConnectionCounter reports how many live sessions a user holds on this process.
type UserConnectionCounter func(userID string) (int, error)

// UserConnectionCycler closes the user's oldest session to make room for a new one.
type UserConnectionCycler func(userID string)

// NewConnectionLimiter enforces limit.MaxPerUser live sessions per user on this
// process. Once a user is at the limit, "reject" answers 429 and "cycle" evicts
// the oldest session before admitting the new one. A zero limit admits every
// handshake. The identity comes from the auth middleware, which must run first.
func NewConnectionLimiter(
	logger *slog.Logger,
	counter UserConnectionCounter,
	cycler UserConnectionCycler,
	limit config.ConnectionLimitConfig,
) Middleware {
	logger = logger.With(slog.String("component", "connection_limiter"), slog.Int("maxPerUser", limit.MaxPerUser))

	return func(next http.Handler) http.Handler {
		if limit.MaxPerUser <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqMeta, ok := ReqMetadataFrom(r.Context())
			if !ok || reqMeta.Identity.UserID == "" {
				logger.Error("Handshake reached the limiter without an identity; check middleware order")
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			userID := reqMeta.Identity.UserID

			live, err := counter(userID)
			if err != nil {
				logger.Error("Could not count live sessions", slog.String("userID", userID), slog.Any("error", err))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
				return
			}
			if live < limit.MaxPerUser {
				next.ServeHTTP(w, r)
				return
			}

			switch limit.Mode {
			case LimitModeReject:
				logger.Warn("Refusing handshake: session limit reached", slog.String("userID", userID), slog.Int("live", live))
				http.Error(w, "Too Many Active Connections", http.StatusTooManyRequests)
			case LimitModeCycle:
				logger.Info("Evicting oldest session to admit handshake", slog.String("userID", userID), slog.Int("live", live))
				cycler(userID)
				next.ServeHTTP(w, r)
			default:
				logger.Error("Unknown connection limit mode", slog.String("mode", limit.Mode))
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		})
	}
}
