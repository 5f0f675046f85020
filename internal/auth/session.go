package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrInvalidSessionToken indicates a session token that fails signature or claim checks.
var ErrInvalidSessionToken = errors.New("invalid session token")

const sessionIssuer = "dooropener"

// SessionClaims is the payload of a session cookie.
// The session ID is the JWT ID; the principal ID is the subject.
type SessionClaims struct {
	jwt.RegisteredClaims
}

// SessionToken is a decoded, signature-checked session cookie.
type SessionToken struct {
	SessionID   string
	PrincipalID int64
	ExpiresAt   time.Time
}

// SessionSigner issues and verifies HS256 session tokens.
type SessionSigner struct {
	secret []byte
}

// NewSessionSigner creates a SessionSigner. The secret must be at least 32 bytes.
func NewSessionSigner(secret string) (*SessionSigner, error) {
	if len(secret) < 32 {
		return nil, errors.New("session secret must be at least 32 bytes")
	}
	return &SessionSigner{secret: []byte(secret)}, nil
}

// Sign produces a token for the given session.
func (s *SessionSigner) Sign(sessionID string, principalID int64, issuedAt, expiresAt time.Time) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        sessionID,
			Subject:   strconv.FormatInt(principalID, 10),
			Issuer:    sessionIssuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})

	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// Verify checks signature, issuer, and expiry and returns the decoded token.
func (s *SessionSigner) Verify(tokenString string) (*SessionToken, error) {
	claims := &SessionClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(sessionIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !token.Valid {
		return nil, ErrInvalidSessionToken
	}

	principalID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || principalID <= 0 || claims.ID == "" {
		return nil, ErrInvalidSessionToken
	}

	return &SessionToken{
		SessionID:   claims.ID,
		PrincipalID: principalID,
		ExpiresAt:   claims.ExpiresAt.Time,
	}, nil
}
