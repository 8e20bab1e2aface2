// internal/auth/session_test.go
package auth

import (
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTRoundTrip(t *testing.T) {
	Init()
	userID := uuid.NewString()

	token, err := CreateJWT(userID)
	require.NoError(t, err)

	sub, err := AuthenticateJWT(token)
	require.NoError(t, err)
	assert.Equal(t, userID, sub)
}

func TestAuthenticateJWTRejectsForgedToken(t *testing.T) {
	Init()

	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": uuid.NewString()})
	signed, err := forged.SignedString([]byte("wrong-secret"))
	require.NoError(t, err)

	_, err = AuthenticateJWT(signed)
	assert.Error(t, err)
}

func TestAuthenticateJWTRejectsGarbage(t *testing.T) {
	Init()
	_, err := AuthenticateJWT("definitely.not.a-token")
	assert.Error(t, err)
}

func TestAuthenticateJWTRequiresSub(t *testing.T) {
	Init()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"aud": "rooms"})
	signed, err := tok.SignedString(signingKey)
	require.NoError(t, err)

	_, err = AuthenticateJWT(signed)
	assert.ErrorContains(t, err, "missing sub")
}
