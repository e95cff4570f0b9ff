// Package auth validates the bearer tokens presented at the relay's upgrade
// boundary. Token issuance belongs to the account service; IssueToken exists
// for tests and local tooling.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken is returned when no token was presented.
	ErrMissingToken = errors.New("auth: missing token")
	// ErrInvalidToken is returned for tokens that fail verification.
	ErrInvalidToken = errors.New("auth: invalid token")
)

// Validator decides whether a caller's token is authorized and which user it
// belongs to.
type Validator interface {
	Validate(ctx context.Context, token string) (uid int64, err error)
}

// Claims is the token payload issued by the account service.
type Claims struct {
	UserID   int64  `json:"userId"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 tokens signed with a shared secret.
type JWTValidator struct {
	secret []byte
}

// NewJWTValidator returns a validator for secret.
func NewJWTValidator(secret string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret)}
}

// Validate checks signature, algorithm and expiry and returns the user id
// carried in the token.
func (v *JWTValidator) Validate(ctx context.Context, token string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return 0, ErrMissingToken
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return 0, ErrInvalidToken
	}
	if claims.UserID <= 0 {
		return 0, fmt.Errorf("%w: missing userId claim", ErrInvalidToken)
	}
	return claims.UserID, nil
}

// IssueToken signs a token for uid that expires after ttl.
func IssueToken(secret string, uid int64, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: uid,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
