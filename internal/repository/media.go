package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/dooropener/dooropener/internal/model"
)

// Common errors for media record operations.
var (
	ErrMediaOwnerMissing = errors.New("media draft has no owner")
	ErrMediaOwnerUnknown = errors.New("media owner does not exist")
	ErrMediaInvalid      = errors.New("media record violates a constraint")
)

const mediaColumns = `id, owner_id, email, blob_locator, created_at, updated_at`

// CreateMedia persists a draft and returns the stored record.
// The ID comes from the table's sequence, so concurrent inserts never collide.
func (r *Repository) CreateMedia(ctx context.Context, draft model.MediaDraft) (*model.MediaRecord, error) {
	if !draft.HasOwner() {
		return nil, ErrMediaOwnerMissing
	}

	query := `
		INSERT INTO media_records (owner_id, email, blob_locator)
		VALUES ($1, $2, $3)
		RETURNING ` + mediaColumns

	record, err := scanMedia(r.pool.QueryRow(ctx, query,
		draft.OwnerID(),
		draft.Email,
		draft.BlobLocator,
	))
	if err != nil {
		switch pgErrorCode(err) {
		case pgForeignKeyViolation:
			return nil, ErrMediaOwnerUnknown
		case pgCheckViolation:
			return nil, ErrMediaInvalid
		}
		return nil, fmt.Errorf("failed to create media record: %w", err)
	}

	return record, nil
}

// ListMediaByOwner returns every record owned by ownerID, oldest first.
func (r *Repository) ListMediaByOwner(ctx context.Context, ownerID int64) ([]*model.MediaRecord, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_records WHERE owner_id = $1 ORDER BY id`

	rows, err := r.pool.Query(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list media by owner: %w", err)
	}

	return collectMedia(rows)
}

// ListAllMedia returns every record across all owners, oldest first.
func (r *Repository) ListAllMedia(ctx context.Context) ([]*model.MediaRecord, error) {
	query := `SELECT ` + mediaColumns + ` FROM media_records ORDER BY id`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list media: %w", err)
	}

	return collectMedia(rows)
}

// CountMedia returns the total number of stored records.
func (r *Repository) CountMedia(ctx context.Context) (int64, error) {
	var count int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM media_records`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count media: %w", err)
	}
	return count, nil
}

func collectMedia(rows pgx.Rows) ([]*model.MediaRecord, error) {
	defer rows.Close()

	records := make([]*model.MediaRecord, 0)
	for rows.Next() {
		record, err := scanMedia(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan media record: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media records: %w", err)
	}

	return records, nil
}

func scanMedia(row pgx.Row) (*model.MediaRecord, error) {
	var record model.MediaRecord
	err := row.Scan(
		&record.ID,
		&record.OwnerID,
		&record.Email,
		&record.BlobLocator,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &record, nil
}
