package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// Device keys read dk_<env>_<prefix>_<secret>. Only the prefix is stored in
// clear, as the lookup handle; the full key is kept as an argon2 hash.
const (
	deviceKeyScheme = "dk"
	prefixBytes     = 3
	secretBytes     = 16
)

// Key environments. Test keys are issued outside production.
const (
	EnvLive = "live"
	EnvTest = "test"
)

// ErrInvalidKeyFormat is returned for anything that is not a device key.
var ErrInvalidKeyFormat = errors.New("invalid device key format")

// GeneratedKey is a freshly issued key. Plaintext is shown to the owner once.
type GeneratedKey struct {
	Plaintext string
	Hash      string
	Prefix    string
}

// ParsedKey holds the parts of a presented device key.
type ParsedKey struct {
	Env    string
	Prefix string
	Secret string
}

func (k ParsedKey) String() string {
	return strings.Join([]string{deviceKeyScheme, k.Env, k.Prefix, k.Secret}, "_")
}

// GenerateDeviceKey issues a key for env; anything but EnvTest yields a live key.
func GenerateDeviceKey(env string) (*GeneratedKey, error) {
	if env != EnvTest {
		env = EnvLive
	}

	prefix, err := randomHex(prefixBytes)
	if err != nil {
		return nil, fmt.Errorf("generate prefix: %w", err)
	}
	secret, err := randomHex(secretBytes)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	plaintext := ParsedKey{Env: env, Prefix: prefix, Secret: secret}.String()
	hash, err := HashPassword(plaintext)
	if err != nil {
		return nil, fmt.Errorf("hash key: %w", err)
	}

	return &GeneratedKey{Plaintext: plaintext, Hash: hash, Prefix: prefix}, nil
}

// ParseDeviceKey splits a presented key, rejecting anything malformed
// before it reaches the store or the hasher.
func ParseDeviceKey(key string) (*ParsedKey, error) {
	parts := strings.Split(key, "_")
	if len(parts) != 4 || parts[0] != deviceKeyScheme {
		return nil, ErrInvalidKeyFormat
	}

	k := &ParsedKey{Env: parts[1], Prefix: parts[2], Secret: parts[3]}
	if k.Env != EnvLive && k.Env != EnvTest {
		return nil, ErrInvalidKeyFormat
	}
	if !isLowerHex(k.Prefix, prefixBytes*2) || !isLowerHex(k.Secret, secretBytes*2) {
		return nil, ErrInvalidKeyFormat
	}
	return k, nil
}

// ValidateKeyFormat reports whether key parses as a device key.
func ValidateKeyFormat(key string) bool {
	_, err := ParseDeviceKey(key)
	return err == nil
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

func isLowerHex(s string, length int) bool {
	if len(s) != length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
