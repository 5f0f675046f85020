package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestNewSessionSigner_ShortSecret(t *testing.T) {
	t.Parallel()

	_, err := NewSessionSigner("too-short")
	require.Error(t, err)
}

func TestSessionSigner_RoundTrip(t *testing.T) {
	t.Parallel()

	signer, err := NewSessionSigner(testSecret)
	require.NoError(t, err)

	now := time.Now()
	token, err := signer.Sign("01HSESSION", 42, now, now.Add(time.Hour))
	require.NoError(t, err)

	decoded, err := signer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "01HSESSION", decoded.SessionID)
	assert.Equal(t, int64(42), decoded.PrincipalID)
	assert.WithinDuration(t, now.Add(time.Hour), decoded.ExpiresAt, time.Second)
}

func TestSessionSigner_Expired(t *testing.T) {
	t.Parallel()

	signer, err := NewSessionSigner(testSecret)
	require.NoError(t, err)

	past := time.Now().Add(-2 * time.Hour)
	token, err := signer.Sign("01HSESSION", 1, past, past.Add(time.Hour))
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}

func TestSessionSigner_WrongSecret(t *testing.T) {
	t.Parallel()

	signer, err := NewSessionSigner(testSecret)
	require.NoError(t, err)
	other, err := NewSessionSigner(strings.Repeat("x", 32))
	require.NoError(t, err)

	now := time.Now()
	token, err := other.Sign("01HSESSION", 1, now, now.Add(time.Hour))
	require.NoError(t, err)

	_, err = signer.Verify(token)
	assert.ErrorIs(t, err, ErrInvalidSessionToken)
}

func TestSessionSigner_RejectsTamperedOrForeignTokens(t *testing.T) {
	t.Parallel()

	signer, err := NewSessionSigner(testSecret)
	require.NoError(t, err)

	now := time.Now()
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HSESSION",
			Subject:   "1",
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	badSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HSESSION",
			Subject:   "not-a-number",
			Issuer:    sessionIssuer,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	otherIssuer, err := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        "01HSESSION",
			Subject:   "1",
			Issuer:    "someone-else",
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := map[string]string{
		"empty":          "",
		"garbage":        "not.a.token",
		"alg none":       noneToken,
		"non-numeric id": badSubject,
		"foreign issuer": otherIssuer,
	}

	for name, token := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := signer.Verify(token)
			assert.ErrorIs(t, err, ErrInvalidSessionToken)
		})
	}
}
