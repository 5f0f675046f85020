package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/lib/pq"

	"github.com/dooropener/dooropener/internal/model"
)

// Common errors for device key repository operations.
var (
	ErrDeviceKeyNotFound = errors.New("device key not found")
)

const deviceKeyColumns = `id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, revoked_at, last_used_at, created_at`

// CreateDeviceKey inserts a new device key into the database.
func (r *Repository) CreateDeviceKey(ctx context.Context, key *model.DeviceKey) error {
	query := `
		INSERT INTO device_keys (id, user_id, key_hash, key_prefix, scopes, rate_limit_tier, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		key.ID,
		key.PrincipalID,
		key.KeyHash,
		key.KeyPrefix,
		pq.Array(key.Scopes),
		key.RateLimitTier,
		key.Name,
		key.CreatedAt,
	)

	if err != nil {
		if pgErrorCode(err) == pgForeignKeyViolation {
			return ErrUserNotFound
		}
		return fmt.Errorf("failed to create device key: %w", err)
	}

	return nil
}

// GetDeviceKeyByID retrieves a device key by its ID.
func (r *Repository) GetDeviceKeyByID(ctx context.Context, id string) (*model.DeviceKey, error) {
	query := `SELECT ` + deviceKeyColumns + ` FROM device_keys WHERE id = $1`

	key, err := scanDeviceKey(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDeviceKeyNotFound
		}
		return nil, fmt.Errorf("failed to scan device key: %w", err)
	}

	return key, nil
}

// GetDeviceKeysByPrefix retrieves all active device keys matching a prefix.
// Used during authentication to find candidate keys for verification.
func (r *Repository) GetDeviceKeysByPrefix(ctx context.Context, prefix string) ([]*model.DeviceKey, error) {
	query := `SELECT ` + deviceKeyColumns + ` FROM device_keys WHERE key_prefix = $1 AND revoked_at IS NULL`

	rows, err := r.pool.Query(ctx, query, prefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get device keys by prefix: %w", err)
	}

	return collectDeviceKeys(rows)
}

// ListDeviceKeysByUserID retrieves all device keys for a user.
func (r *Repository) ListDeviceKeysByUserID(ctx context.Context, userID int64) ([]*model.DeviceKey, error) {
	query := `SELECT ` + deviceKeyColumns + ` FROM device_keys WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list device keys: %w", err)
	}

	return collectDeviceKeys(rows)
}

// RevokeDeviceKey revokes a device key by setting revoked_at.
func (r *Repository) RevokeDeviceKey(ctx context.Context, id string) error {
	query := `
		UPDATE device_keys
		SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`

	result, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to revoke device key: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrDeviceKeyNotFound
	}

	return nil
}

// UpdateDeviceKeyLastUsed updates the last_used_at timestamp.
// Should be called asynchronously after successful authentication.
func (r *Repository) UpdateDeviceKeyLastUsed(ctx context.Context, id string) error {
	query := `
		UPDATE device_keys
		SET last_used_at = $2
		WHERE id = $1
	`

	_, err := r.pool.Exec(ctx, query, id, time.Now())
	if err != nil {
		return fmt.Errorf("failed to update device key last used: %w", err)
	}

	return nil
}

func collectDeviceKeys(rows pgx.Rows) ([]*model.DeviceKey, error) {
	defer rows.Close()

	var keys []*model.DeviceKey
	for rows.Next() {
		key, err := scanDeviceKey(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan device key: %w", err)
		}
		keys = append(keys, key)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating device keys: %w", err)
	}

	return keys, nil
}

// scanDeviceKey scans a single row into a DeviceKey model.
func scanDeviceKey(row pgx.Row) (*model.DeviceKey, error) {
	var key model.DeviceKey
	var scopes []string

	err := row.Scan(
		&key.ID,
		&key.PrincipalID,
		&key.KeyHash,
		&key.KeyPrefix,
		pq.Array(&scopes),
		&key.RateLimitTier,
		&key.Name,
		&key.RevokedAt,
		&key.LastUsedAt,
		&key.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	key.Scopes = scopes
	return &key, nil
}
