package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret string, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyValidToken(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		UserID: "42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 42, userID)
}

func TestVerifyFallsBackToSubject(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	userID, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, 7, userID)
}

func TestVerifyExpiredToken(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{
		UserID: "42",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestVerifyWrongSecret(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "other", Claims{UserID: "42"})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsNonNumericSubject(t *testing.T) {
	v := NewVerifier("secret")
	token := signToken(t, "secret", Claims{UserID: "bob"})

	_, err := v.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewVerifier("secret")
	_, err := v.Verify("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
