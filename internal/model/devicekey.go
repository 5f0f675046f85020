package model

import (
	"slices"
	"time"
)

// Scope constants for device key authorization.
const (
	ScopeFeedRead = "feed:read"
	ScopeAdmin    = "admin"
)

// ValidScopes contains all valid scope values.
var ValidScopes = []string{ScopeFeedRead, ScopeAdmin}

// RateLimitTier constants.
const (
	TierFree      = "free"
	TierPro       = "pro"
	TierUnlimited = "unlimited"
)

// RateLimitConfig defines rate limit parameters per tier.
type RateLimitConfig struct {
	RequestsPerMinute int
	Burst             int
}

// TierConfigs maps tier names to their rate limit configurations.
// Devices poll, so even the free tier allows one request per second.
var TierConfigs = map[string]RateLimitConfig{
	TierFree:      {RequestsPerMinute: 60, Burst: 10},
	TierPro:       {RequestsPerMinute: 600, Burst: 50},
	TierUnlimited: {RequestsPerMinute: 0, Burst: 0}, // 0 means unlimited
}

// DeviceKey is a credential issued to an access-control device polling the feed.
type DeviceKey struct {
	ID            string     `json:"id"`
	PrincipalID   int64      `json:"principal_id"`
	KeyHash       string     `json:"-"` // Never serialize
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	Name          string     `json:"name,omitempty"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// IsRevoked returns true if the key has been revoked.
func (k *DeviceKey) IsRevoked() bool {
	return k.RevokedAt != nil
}

// HasScope checks if the key has a specific scope.
// Admin scope implies all other scopes.
func (k *DeviceKey) HasScope(scope string) bool {
	if slices.Contains(k.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(k.Scopes, scope)
}

// GetRateLimitConfig returns the rate limit configuration for this key.
func (k *DeviceKey) GetRateLimitConfig() RateLimitConfig {
	if config, ok := TierConfigs[k.RateLimitTier]; ok {
		return config
	}
	return TierConfigs[TierFree]
}

// DeviceAuthContext holds the authenticated device for a feed request.
// Injected into the request context by the device key middleware.
type DeviceAuthContext struct {
	KeyID         string
	KeyPrefix     string
	PrincipalID   int64
	Scopes        []string
	RateLimitTier string
}

// HasScope checks if the auth context has a specific scope.
func (a *DeviceAuthContext) HasScope(scope string) bool {
	if slices.Contains(a.Scopes, ScopeAdmin) {
		return true
	}
	return slices.Contains(a.Scopes, scope)
}

// DeviceKeyCreateRequest represents a request to issue a new device key.
type DeviceKeyCreateRequest struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scopes"`
}

// DeviceKeyResponse represents a device key without secrets.
type DeviceKeyResponse struct {
	ID            string     `json:"id"`
	Name          string     `json:"name,omitempty"`
	KeyPrefix     string     `json:"key_prefix"`
	Scopes        []string   `json:"scopes"`
	RateLimitTier string     `json:"rate_limit_tier"`
	CreatedAt     time.Time  `json:"created_at"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	Revoked       bool       `json:"revoked"`
}

// ToResponse converts a DeviceKey to DeviceKeyResponse.
func (k *DeviceKey) ToResponse() DeviceKeyResponse {
	return DeviceKeyResponse{
		ID:            k.ID,
		Name:          k.Name,
		KeyPrefix:     k.KeyPrefix,
		Scopes:        k.Scopes,
		RateLimitTier: k.RateLimitTier,
		CreatedAt:     k.CreatedAt,
		LastUsedAt:    k.LastUsedAt,
		Revoked:       k.IsRevoked(),
	}
}

// DeviceKeyCreateResponse includes the plaintext key (shown only once).
type DeviceKeyCreateResponse struct {
	ID            string    `json:"id"`
	Key           string    `json:"key"` // Plaintext - display once only!
	Name          string    `json:"name,omitempty"`
	KeyPrefix     string    `json:"key_prefix"`
	Scopes        []string  `json:"scopes"`
	RateLimitTier string    `json:"rate_limit_tier"`
	CreatedAt     time.Time `json:"created_at"`
}

// DeviceKeyRotateResponse includes both old and new key information.
type DeviceKeyRotateResponse struct {
	OldKeyID        string                  `json:"old_key_id"`
	OldKeyRevokedAt time.Time               `json:"old_key_revoked_at"`
	NewKey          DeviceKeyCreateResponse `json:"new_key"`
}
