package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dooropener/dooropener/internal/access"
	"github.com/dooropener/dooropener/internal/blob"
	"github.com/dooropener/dooropener/internal/metrics"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/repository"
)

// ProfileMedia is one of the owner's records with its image URL resolved.
type ProfileMedia struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Image     string    `json:"image"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UploadForm is the submission form state shown with a profile.
type UploadForm struct {
	Email string `json:"email"`
}

// ProfileView is everything shown on a profile page.
type ProfileView struct {
	Owner  *model.Principal `json:"owner"`
	Media  []ProfileMedia   `json:"media"`
	Form   UploadForm       `json:"form"`
	Errors FieldErrors      `json:"errors,omitempty"`
}

// ProfileResult is either a view or a redirect, never both.
type ProfileResult struct {
	View *ProfileView
	// Redirect is a URL path the caller must be sent to instead.
	Redirect string
	// Created is the record created by a successful upload.
	Created *model.MediaRecord
}

// HasErrors reports whether the view carries field errors.
func (r *ProfileResult) HasErrors() bool {
	return r.View != nil && len(r.View.Errors) > 0
}

// ProfileService lists and creates media records for the profile owner.
type ProfileService struct {
	users         UserStore
	media         MediaStore
	blobs         blob.Store
	maxUploadSize int64
	metrics       metrics.Recorder
	logger        *slog.Logger
	now           func() time.Time
}

// NewProfileService creates a new ProfileService.
func NewProfileService(users UserStore, media MediaStore, blobs blob.Store, maxUploadSize int64, recorder metrics.Recorder, logger *slog.Logger) *ProfileService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		users:         users,
		media:         media,
		blobs:         blobs,
		maxUploadSize: maxUploadSize,
		metrics:       recorder,
		logger:        logger,
		now:           time.Now,
	}
}

// ViewProfile returns targetID's profile if viewer owns it. Otherwise the
// result redirects to the login page or to the viewer's own profile.
func (s *ProfileService) ViewProfile(ctx context.Context, viewer *model.Principal, targetID int64) (*ProfileResult, error) {
	owner, redirect, err := s.authorize(ctx, viewer, targetID)
	if err != nil || redirect != nil {
		return redirect, err
	}

	view, err := s.buildView(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &ProfileResult{View: view}, nil
}

// SubmitUpload stores an upload for targetID if viewer owns it. The new
// record is always owned by viewer. On invalid input the view is returned
// with field errors and nothing is stored.
func (s *ProfileService) SubmitUpload(ctx context.Context, viewer *model.Principal, targetID int64, in UploadInput) (*ProfileResult, error) {
	owner, redirect, err := s.authorize(ctx, viewer, targetID)
	if err != nil || redirect != nil {
		return redirect, err
	}

	valid, errs := ValidateUpload(in, s.maxUploadSize)
	if len(errs) > 0 {
		s.metrics.IncUploadRejected()
		view, err := s.buildView(ctx, owner)
		if err != nil {
			return nil, err
		}
		view.Form.Email = in.Email
		view.Errors = errs
		return &ProfileResult{View: view}, nil
	}

	record, err := s.store(ctx, owner, valid)
	if err != nil {
		return nil, err
	}

	view, err := s.buildView(ctx, owner)
	if err != nil {
		return nil, err
	}
	return &ProfileResult{View: view, Created: record}, nil
}

// authorize runs the access guard before touching any store, so a denied
// request learns nothing about the target.
func (s *ProfileService) authorize(ctx context.Context, viewer *model.Principal, targetID int64) (*model.Principal, *ProfileResult, error) {
	decision := access.Authorize(viewer, targetID)
	switch decision.Outcome {
	case access.LoginRequired:
		return nil, &ProfileResult{Redirect: access.LoginPath(access.ProfilePath(targetID))}, nil
	case access.Denied:
		s.metrics.IncCrossAccountRedirect()
		s.logger.Warn("cross-account profile access",
			slog.String("reason", "not_owner"),
			slog.Int64("principal_id", viewer.ID),
			slog.Int64("target_id", targetID),
		)
		return nil, &ProfileResult{Redirect: access.ProfilePath(decision.RedirectTo)}, nil
	}

	owner, err := s.users.GetUserByID(ctx, targetID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return owner, nil, nil
}

// store writes the blob first and the record second. The record gates
// visibility; if it cannot be written the blob is deleted again.
func (s *ProfileService) store(ctx context.Context, owner *model.Principal, up *ValidUpload) (*model.MediaRecord, error) {
	loc, err := s.blobs.Put(ctx, blob.Object{
		Key:         blob.NewObjectKey(up.Filename, s.now()),
		ContentType: up.ContentType,
		Size:        int64(len(up.Data)),
		Body:        bytes.NewReader(up.Data),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrBlob, err)
	}

	record, err := s.media.CreateMedia(ctx, model.NewMediaDraft(owner, up.Email, string(loc)))
	if err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), loc); delErr != nil {
			s.logger.Error("failed to remove blob after record write failed",
				slog.String("locator", string(loc)),
				slog.String("error", delErr.Error()),
			)
		} else {
			s.metrics.IncOrphanBlobCleaned()
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.metrics.IncMediaCreated()
	s.logger.Info("media created",
		slog.Int64("media_id", record.ID),
		slog.Int64("owner_id", record.OwnerID),
	)

	return record, nil
}

func (s *ProfileService) buildView(ctx context.Context, owner *model.Principal) (*ProfileView, error) {
	records, err := s.media.ListMediaByOwner(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	media := make([]ProfileMedia, 0, len(records))
	for _, r := range records {
		url, err := s.blobs.Resolve(ctx, blob.Locator(r.BlobLocator))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrBlob, err)
		}
		media = append(media, ProfileMedia{
			ID:        r.ID,
			Email:     r.Email,
			Image:     url,
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		})
	}

	return &ProfileView{
		Owner: owner,
		Media: media,
		Form:  UploadForm{Email: owner.Email},
	}, nil
}
