package auth_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"studysync-backend/internal/auth"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", 15*time.Minute)

	token, err := mgr.GenerateAccessToken(42, "kim@example.com", "김철수")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := mgr.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.UserID)
	assert.Equal(t, "kim@example.com", claims.Email)
	assert.Equal(t, "김철수", claims.Nickname)
	assert.Equal(t, "42", claims.Subject)
}

func TestExpiredTokenRejected(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", -time.Minute)

	token, err := mgr.GenerateAccessToken(1, "a@b.c", "a")
	require.NoError(t, err)

	_, err = mgr.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrExpiredToken)
}

func TestWrongSecretRejected(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", 15*time.Minute)
	other := auth.NewJWTManager("other-secret", 15*time.Minute)

	token, err := mgr.GenerateAccessToken(1, "a@b.c", "a")
	require.NoError(t, err)

	_, err = other.ValidateAccessToken(token)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestGarbageTokenRejected(t *testing.T) {
	mgr := auth.NewJWTManager("test-secret", 15*time.Minute)

	_, err := mgr.ValidateAccessToken("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}
