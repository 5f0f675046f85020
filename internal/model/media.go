package model

import (
	"strings"
	"time"
)

// MediaRecord is one uploaded image bound to exactly one owner.
type MediaRecord struct {
	ID          int64     `json:"id"`
	OwnerID     int64     `json:"owner_id"`
	Email       string    `json:"email"`
	BlobLocator string    `json:"blob_locator"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// MediaDraft is a MediaRecord that has not been persisted yet.
//
// The owner is fixed by NewMediaDraft and has no setter, so a draft can only
// ever be owned by the Principal it was built from.
type MediaDraft struct {
	ownerID     int64
	Email       string
	BlobLocator string
}

// NewMediaDraft builds a draft owned by owner. An empty email defaults to the
// owner's email. A nil owner yields a draft without an owner, which stores reject.
func NewMediaDraft(owner *Principal, email, blobLocator string) MediaDraft {
	email = strings.TrimSpace(email)
	if owner == nil {
		return MediaDraft{Email: email, BlobLocator: blobLocator}
	}
	if email == "" {
		email = owner.Email
	}
	return MediaDraft{
		ownerID:     owner.ID,
		Email:       email,
		BlobLocator: blobLocator,
	}
}

// OwnerID returns the owning Principal's ID.
func (d MediaDraft) OwnerID() int64 {
	return d.ownerID
}

// HasOwner reports whether the draft was built through NewMediaDraft.
func (d MediaDraft) HasOwner() bool {
	return d.ownerID > 0
}
