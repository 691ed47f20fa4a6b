package auth

import (
	"context"
	"testing"
	"time"

	"groupchat/internal/domain"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-that-is-long-enough-for-hs256"

func TestJWTVerifier_Verify(t *testing.T) {
	ctx := context.Background()
	v := NewJWTVerifier(testSecret, "groupchat")

	t.Run("valid token", func(t *testing.T) {
		token, err := v.Issue("user-1", time.Hour)
		require.NoError(t, err)

		userID, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", userID)
	})

	t.Run("subject fallback", func(t *testing.T) {
		claims := jwt.RegisteredClaims{
			Subject:   "user-2",
			Issuer:    "groupchat",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
		require.NoError(t, err)

		userID, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, "user-2", userID)
	})

	t.Run("expired", func(t *testing.T) {
		token, err := v.Issue("user-1", -time.Minute)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrAuth)
		assert.Contains(t, err.Error(), "expired")
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTVerifier("another-secret-that-is-long-enough!", "groupchat")
		token, err := other.Issue("user-1", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrAuth)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTVerifier(testSecret, "someone-else")
		token, err := other.Issue("user-1", time.Hour)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrAuth)
	})

	t.Run("unsigned token", func(t *testing.T) {
		token, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "user-1"}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrAuth)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := v.Verify(ctx, "not-a-jwt")
		assert.ErrorIs(t, err, domain.ErrAuth)
		_, err = v.Verify(ctx, "")
		assert.ErrorIs(t, err, domain.ErrAuth)
	})

	t.Run("no user", func(t *testing.T) {
		token, err := v.Issue("", time.Hour)
		require.NoError(t, err)
		_, err = v.Verify(ctx, token)
		assert.ErrorIs(t, err, domain.ErrAuth)
	})
}
