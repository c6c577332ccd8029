package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testAccessSecret  = "access-secret-32-chars-long!!!!!"
	testRefreshSecret = "refresh-secret-32-chars-long!!!!"
)

func newTestJWT() *JWTManager {
	return NewJWTManager(testAccessSecret, testRefreshSecret, 15*time.Minute, 7*24*time.Hour)
}

func TestJWTManager_GenerateAndValidate(t *testing.T) {
	mgr := newTestJWT()
	sub := Subject{ID: "user-123", Username: "ivan", Role: RoleUser}

	t.Run("access token carries subject", func(t *testing.T) {
		pair, tokenID, err := mgr.GenerateTokenPair(sub)
		require.NoError(t, err)
		assert.NotEmpty(t, tokenID)
		assert.Equal(t, int64(900), pair.ExpiresIn)

		claims, err := mgr.ValidateAccessToken(pair.AccessToken)
		require.NoError(t, err)
		assert.Equal(t, "user-123", claims.UserID)
		assert.Equal(t, "ivan", claims.Username)
		assert.Equal(t, RoleUser, claims.Role)
	})

	t.Run("refresh token carries subject and id", func(t *testing.T) {
		pair, tokenID, err := mgr.GenerateTokenPair(Subject{ID: "admin-1", Username: "admin", Role: RoleAdmin})
		require.NoError(t, err)

		claims, err := mgr.ValidateRefreshToken(pair.RefreshToken)
		require.NoError(t, err)
		assert.Equal(t, "admin-1", claims.UserID)
		assert.Equal(t, RoleAdmin, claims.Role)
		assert.Equal(t, tokenID, claims.TokenID)
	})

	t.Run("garbage fails", func(t *testing.T) {
		_, err := mgr.ValidateAccessToken("invalid-token")
		assert.Error(t, err)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		pair, _, _ := mgr.GenerateTokenPair(sub)
		_, err := mgr.ValidateRefreshToken(pair.AccessToken)
		assert.Error(t, err)
	})

	t.Run("expired token fails", func(t *testing.T) {
		expired := NewJWTManager(testAccessSecret, testRefreshSecret, -time.Second, -time.Second)
		pair, _, err := expired.GenerateTokenPair(sub)
		require.NoError(t, err)

		_, err = expired.ValidateAccessToken(pair.AccessToken)
		assert.Error(t, err)
	})

	t.Run("foreign issuer fails", func(t *testing.T) {
		claims := AccessClaims{
			UserID: "user-123",
			Role:   RoleUser,
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "someone-else",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testAccessSecret))
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})

	t.Run("none algorithm rejected", func(t *testing.T) {
		claims := AccessClaims{
			UserID:           "user-123",
			RegisteredClaims: jwt.RegisteredClaims{Issuer: issuer},
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = mgr.ValidateAccessToken(token)
		assert.Error(t, err)
	})
}
