// Package service implements identity, profile, device feed and device key
// business logic on top of the store interfaces below.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/dooropener/dooropener/internal/model"
)

// Service errors.
var (
	// ErrAuth is returned for any credential failure. It never says which
	// part of the credentials was wrong.
	ErrAuth = errors.New("invalid username or password")
	// ErrNotFound is returned when a target resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrAccessDenied is returned when a principal acts on a resource it does not own.
	ErrAccessDenied = errors.New("access denied")
	// ErrStorage wraps record store failures.
	ErrStorage = errors.New("storage unavailable")
	// ErrBlob wraps blob store failures.
	ErrBlob = errors.New("blob store unavailable")
)

// UserStore persists principals.
type UserStore interface {
	CreateUser(ctx context.Context, user *model.Principal) error
	GetUserByID(ctx context.Context, id int64) (*model.Principal, error)
	GetUserByUsername(ctx context.Context, username string) (*model.Principal, error)
}

// MediaStore persists media records.
type MediaStore interface {
	CreateMedia(ctx context.Context, draft model.MediaDraft) (*model.MediaRecord, error)
	ListMediaByOwner(ctx context.Context, ownerID int64) ([]*model.MediaRecord, error)
	ListAllMedia(ctx context.Context) ([]*model.MediaRecord, error)
	CountMedia(ctx context.Context) (int64, error)
}

// SessionStore keeps live sessions.
type SessionStore interface {
	SetSession(ctx context.Context, session *model.Session) error
	GetSession(ctx context.Context, id string) (*model.Session, error)
	DeleteSession(ctx context.Context, id string) error
}

// FeedCache holds device feed snapshots keyed by store version.
type FeedCache interface {
	GetFeed(ctx context.Context, version int64) ([]model.FeedItem, error)
	SetFeed(ctx context.Context, version int64, items []model.FeedItem, ttl time.Duration) error
}

// DeviceKeyStore persists device keys.
type DeviceKeyStore interface {
	CreateDeviceKey(ctx context.Context, key *model.DeviceKey) error
	GetDeviceKeyByID(ctx context.Context, id string) (*model.DeviceKey, error)
	ListDeviceKeysByUserID(ctx context.Context, userID int64) ([]*model.DeviceKey, error)
	RevokeDeviceKey(ctx context.Context, id string) error
}

// DeviceAuthInvalidator drops cached device authentication results.
type DeviceAuthInvalidator interface {
	DeleteDeviceAuthByKeyID(ctx context.Context, keyID string) error
}
