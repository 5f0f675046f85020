// Package model defines domain entities for the application.
package model

import "time"

// Principal is an authenticated user identity.
type Principal struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never serialize
	CreatedAt    time.Time `json:"created_at"`
}

// Session binds requests to a Principal until logout or expiry.
type Session struct {
	ID          string    `json:"id"`
	PrincipalID int64     `json:"principal_id"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// IsExpired reports whether the session is past its expiry at the given time.
func (s *Session) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
