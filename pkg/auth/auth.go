// Package auth verifies the bearer credentials presented when a client opens a
// collaboration connection and extracts the identity encoded in them.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrMissingToken        = errors.New("authentication error: token not provided")
	ErrMissingServerSecret = errors.New("authentication error: secret key not defined")
	ErrInvalidToken        = errors.New("authentication error: invalid token")
)

// Identity is what an admitted connection knows about its user.
type Identity struct {
	UserID string `json:"userId"`
	Email  string `json:"email"`
}

// Claims is the token payload. UserID falls back to the registered subject.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	Email  string `json:"email,omitempty"`
	jwt.RegisteredClaims
}

var hmacMethods = []string{
	jwt.SigningMethodHS256.Alg(),
	jwt.SigningMethodHS384.Alg(),
	jwt.SigningMethodHS512.Alg(),
}

// Verify checks tokenString against secret and returns the identity it carries.
// Errors are always one of ErrMissingToken, ErrMissingServerSecret or ErrInvalidToken
// (possibly wrapping the underlying parse error).
func Verify(tokenString, secret string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, ErrMissingToken
	}
	if secret == "" {
		return Identity{}, ErrMissingServerSecret
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods(hmacMethods))
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID := claims.UserID
	if userID == "" {
		userID = claims.Subject
	}
	if userID == "" {
		return Identity{}, fmt.Errorf("%w: token has no user id", ErrInvalidToken)
	}
	return Identity{UserID: userID, Email: claims.Email}, nil
}

// Verifier binds a server secret so callers don't pass it around.
type Verifier struct {
	secret string
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: secret}
}

func (v *Verifier) Verify(tokenString string) (Identity, error) {
	return Verify(tokenString, v.secret)
}

// Issue mints an HS256 token for id. A zero ttl produces a token without expiry;
// a negative one produces a token that has already expired.
// Only used by the development CLI and tests; production tokens come from the
// account service.
func Issue(id Identity, secret string, ttl time.Duration) (string, error) {
	if secret == "" {
		return "", ErrMissingServerSecret
	}
	now := time.Now()
	claims := Claims{
		UserID: id.UserID,
		Email:  id.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl != 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}
