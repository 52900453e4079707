package auth_test

import (
	"testing"
	"time"

	"github.com/Vamsi-o/collaborative-workspace/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func TestVerifyReturnsClaimsIdentity(t *testing.T) {
	token, err := auth.Issue(auth.Identity{UserID: "u1", Email: "u1@example.com"}, secret, time.Minute)
	require.NoError(t, err)

	id, err := auth.Verify(token, secret)
	require.NoError(t, err)
	assert.Equal(t, auth.Identity{UserID: "u1", Email: "u1@example.com"}, id)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":   "subject-user",
		"email": "s@example.com",
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	id, err := auth.NewVerifier(secret).Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "subject-user", id.UserID)
	assert.Equal(t, "s@example.com", id.Email)
}

func TestVerifyErrors(t *testing.T) {
	valid, err := auth.Issue(auth.Identity{UserID: "u1"}, secret, time.Minute)
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId": "u1",
		"exp":    time.Now().Add(-time.Minute).Unix(),
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	noUser, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"email": "nobody@example.com",
	}).SignedString([]byte(secret))
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
		"userId": "u1",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
		want   error
	}{
		{"missing token", "", secret, auth.ErrMissingToken},
		{"missing secret", valid, "", auth.ErrMissingServerSecret},
		{"wrong secret", valid, "other-secret", auth.ErrInvalidToken},
		{"malformed", "not-a-jwt", secret, auth.ErrInvalidToken},
		{"expired", expired, secret, auth.ErrInvalidToken},
		{"no user id", noUser, secret, auth.ErrInvalidToken},
		{"alg none", unsigned, secret, auth.ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Verify(tt.token, tt.secret)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestIssueRequiresSecret(t *testing.T) {
	_, err := auth.Issue(auth.Identity{UserID: "u1"}, "", 0)
	assert.ErrorIs(t, err, auth.ErrMissingServerSecret)
}
