package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "relay-test-secret"

// TestValidateIssuedToken tests the round trip of an issued token.
func TestValidateIssuedToken(t *testing.T) {
	token, err := IssueToken(testSecret, 42, time.Hour)
	require.NoError(t, err)

	uid, err := NewJWTValidator(testSecret).Validate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), uid)
}

// TestValidateRejectsBadTokens tests the rejection paths of the validator.
func TestValidateRejectsBadTokens(t *testing.T) {
	expired, err := IssueToken(testSecret, 42, -time.Minute)
	require.NoError(t, err)
	otherSecret, err := IssueToken("another-secret", 42, time.Hour)
	require.NoError(t, err)
	noUser, err := IssueToken(testSecret, 0, time.Hour)
	require.NoError(t, err)
	wrongAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, Claims{UserID: 42}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name    string
		token   string
		wantErr error
	}{
		{name: "empty", token: "  ", wantErr: ErrMissingToken},
		{name: "garbage", token: "not-a-jwt", wantErr: ErrInvalidToken},
		{name: "expired", token: expired, wantErr: ErrInvalidToken},
		{name: "wrong secret", token: otherSecret, wantErr: ErrInvalidToken},
		{name: "missing user", token: noUser, wantErr: ErrInvalidToken},
		{name: "wrong algorithm", token: wrongAlg, wantErr: ErrInvalidToken},
	}

	v := NewJWTValidator(testSecret)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uid, err := v.Validate(context.Background(), tt.token)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Zero(t, uid)
		})
	}
}

// TestValidateHonorsContext tests that a cancelled context short-circuits.
func TestValidateHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewJWTValidator(testSecret).Validate(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}
