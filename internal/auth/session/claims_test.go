package session

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestReadClaimsUserIDClaim(t *testing.T) {
	exp := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	token := signed(t, jwt.MapClaims{"sub": "ada@example.com", "uid": 42, "exp": exp.Unix()})

	claims, ok := ReadClaims(token)
	require.True(t, ok)
	assert.Equal(t, "ada@example.com", claims.Subject)
	assert.Equal(t, int64(42), claims.UserID)
	assert.True(t, exp.Equal(claims.ExpiresAt))
}

func TestReadClaimsNumericSubject(t *testing.T) {
	claims, ok := ReadClaims(signed(t, jwt.MapClaims{"sub": "17"}))
	require.True(t, ok)
	assert.Equal(t, int64(17), claims.UserID)
	assert.True(t, claims.ExpiresAt.IsZero())
}

func TestReadClaimsStringUserID(t *testing.T) {
	claims, ok := ReadClaims(signed(t, jwt.MapClaims{"userId": "8"}))
	require.True(t, ok)
	assert.Equal(t, int64(8), claims.UserID)
}

func TestReadClaimsOpaqueToken(t *testing.T) {
	_, ok := ReadClaims("not-a-jwt")
	assert.False(t, ok)
}
