package middleware_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/internal/server/middleware"
	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/Vamsi-o/collaborative-workspace/pkg/config"
	"github.com/Vamsi-o/collaborative-workspace/pkg/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "gate-secret"

// captureIdentity is the protected handler; it records what the gate attached.
func captureIdentity(got *auth.Identity, called *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*called = true
		if meta, ok := middleware.ReqMetadataFrom(r.Context()); ok {
			*got = meta.Identity
		}
		w.WriteHeader(http.StatusOK)
	})
}

func gate(verifierSecret string, next http.Handler) http.Handler {
	return middleware.Chain(next,
		middleware.RequestMetadataMiddleware(),
		middleware.NewAuthMiddleware(logging.Discard(), auth.NewVerifier(verifierSecret)),
	)
}

func TestAuthMiddlewareAdmitsValidToken(t *testing.T) {
	token, err := auth.Issue(auth.Identity{UserID: "u1", Email: "u1@example.com"}, secret, time.Minute)
	require.NoError(t, err)

	for name, build := range map[string]func(*http.Request){
		"header": func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) },
		"query": func(r *http.Request) {
			q := r.URL.Query()
			q.Set("token", token)
			r.URL.RawQuery = q.Encode()
		},
	} {
		t.Run(name, func(t *testing.T) {
			var got auth.Identity
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			build(req)
			rec := httptest.NewRecorder()

			gate(secret, captureIdentity(&got, &called)).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.True(t, called)
			assert.Equal(t, auth.Identity{UserID: "u1", Email: "u1@example.com"}, got)
		})
	}
}

func TestAuthMiddlewareRejects(t *testing.T) {
	valid, err := auth.Issue(auth.Identity{UserID: "u1"}, secret, time.Minute)
	require.NoError(t, err)
	expired, err := auth.Issue(auth.Identity{UserID: "u1"}, secret, -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name       string
		secret     string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing token", secret, "", http.StatusUnauthorized, auth.ErrMissingToken.Error()},
		{"bad signature", "other", "Bearer " + valid, http.StatusUnauthorized, auth.ErrInvalidToken.Error()},
		{"expired", secret, "Bearer " + expired, http.StatusUnauthorized, auth.ErrInvalidToken.Error()},
		{"garbage", secret, "Bearer abc.def", http.StatusUnauthorized, auth.ErrInvalidToken.Error()},
		{"wrong scheme", secret, "Basic " + valid, http.StatusUnauthorized, auth.ErrMissingToken.Error()},
		{"no server secret", "", "Bearer " + valid, http.StatusInternalServerError, auth.ErrMissingServerSecret.Error()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got auth.Identity
			var called bool
			req := httptest.NewRequest(http.MethodGet, "/ws", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			gate(tt.secret, captureIdentity(&got, &called)).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
			assert.False(t, called, "rejected request must not reach the handler")
		})
	}
}

func TestRequestTokenPrefersHeader(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/ws?token=from-query", nil)
	assert.Equal(t, "from-query", middleware.RequestToken(req))

	req.Header.Set("Authorization", "bearer from-header")
	assert.Equal(t, "from-header", middleware.RequestToken(req))
}

func TestConnectionLimiter(t *testing.T) {
	token, err := auth.Issue(auth.Identity{UserID: "u1"}, secret, time.Minute)
	require.NoError(t, err)

	run := func(cfg config.ConnectionLimitConfig, count int) (int, []string) {
		var cycled []string
		limiter := middleware.NewConnectionLimiter(logging.Discard(),
			func(string) (int, error) { return count, nil },
			func(userID string) { cycled = append(cycled, userID) },
			cfg,
		)
		var got auth.Identity
		var called bool
		h := middleware.Chain(captureIdentity(&got, &called),
			middleware.RequestMetadataMiddleware(),
			middleware.NewAuthMiddleware(logging.Discard(), auth.NewVerifier(secret)),
			limiter,
		)
		req := httptest.NewRequest(http.MethodGet, "/ws", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code, cycled
	}

	code, _ := run(config.ConnectionLimitConfig{}, 100)
	assert.Equal(t, http.StatusOK, code, "disabled limiter admits everything")

	code, _ = run(config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "reject"}, 1)
	assert.Equal(t, http.StatusOK, code)

	code, _ = run(config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "reject"}, 2)
	assert.Equal(t, http.StatusTooManyRequests, code)

	code, cycled := run(config.ConnectionLimitConfig{MaxPerUser: 2, Mode: "cycle"}, 2)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"u1"}, cycled)
}

func TestRequestMetadataAssignsRequestID(t *testing.T) {
	var seen string
	h := middleware.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		meta, ok := middleware.ReqMetadataFrom(r.Context())
		require.True(t, ok)
		seen = meta.RequestID
		assert.Equal(t, "192.0.2.1", meta.IP)
	}), middleware.RequestMetadataMiddleware())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(middleware.RequestIDHeader))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(middleware.RequestIDHeader, "abc-123")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", seen)
}

func TestRequestLoggerRecordsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWithOptions(&buf, logging.LevelDebug, "json")

	h := middleware.Chain(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusTeapot)
	}), middleware.RequestMetadataMiddleware(), middleware.NewRequestLogger(logger))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/jobs/x", nil))

	out := buf.String()
	assert.Contains(t, out, `"level":"WARN"`)
	assert.Contains(t, out, `"status":418`)
	assert.Contains(t, out, `"uri":"/jobs/x"`)
}

func TestConnectionLimiterNeedsIdentity(t *testing.T) {
	limiter := middleware.NewConnectionLimiter(logging.Discard(),
		func(string) (int, error) { return 0, nil },
		func(string) {},
		config.ConnectionLimitConfig{MaxPerUser: 1, Mode: middleware.LimitModeReject},
	)
	var called bool
	// no auth middleware in front, so the metadata carries no identity
	h := middleware.Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }),
		middleware.RequestMetadataMiddleware(),
		limiter,
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.False(t, called)
}
