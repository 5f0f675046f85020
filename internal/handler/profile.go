package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/dooropener/dooropener/internal/access"
	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/service"
)

// Multipart field names of the upload form. "image" is accepted as an alias.
const (
	formFieldEmail      = "email"
	formFieldImages     = "images"
	formFieldImageAlias = "image"
)

// multipartMemory is how much of a multipart body is kept in memory before
// spilling to temporary files.
const multipartMemory = 8 << 20

// ProfileUseCase is the profile service used by profile endpoints.
type ProfileUseCase interface {
	ViewProfile(ctx context.Context, viewer *model.Principal, targetID int64) (*service.ProfileResult, error)
	SubmitUpload(ctx context.Context, viewer *model.Principal, targetID int64, in service.UploadInput) (*service.ProfileResult, error)
}

// ProfileHandler serves a principal's own media records and upload form.
type ProfileHandler struct {
	profiles      ProfileUseCase
	maxUploadSize int64
	logger        *slog.Logger
}

// NewProfileHandler creates a new ProfileHandler.
func NewProfileHandler(profiles ProfileUseCase, maxUploadSize int64, logger *slog.Logger) *ProfileHandler {
	return &ProfileHandler{profiles: profiles, maxUploadSize: maxUploadSize, logger: logger}
}

// UploadResponse is returned after a successful upload.
type UploadResponse struct {
	Created *model.MediaRecord   `json:"created"`
	Profile *service.ProfileView `json:"profile"`
}

// View handles GET /profile/{id}/
func (h *ProfileHandler) View(w http.ResponseWriter, r *http.Request) {
	viewer := auth.PrincipalFromContext(r.Context())
	targetID, ok := h.target(w, r, viewer)
	if !ok {
		return
	}

	result, err := h.profiles.ViewProfile(r.Context(), viewer, targetID)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if result.Redirect != "" {
		http.Redirect(w, r, result.Redirect, http.StatusFound)
		return
	}

	writeJSON(w, http.StatusOK, result.View)
}

// Upload handles POST /profile/{id}/
// The new record is always owned by the session principal; an "owner" form
// field, if present, is never read.
func (h *ProfileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	viewer := auth.PrincipalFromContext(r.Context())
	targetID, ok := h.target(w, r, viewer)
	if !ok {
		return
	}

	// The body is only read for the profile owner. Anyone else reaches the
	// service with an empty submission and is redirected there.
	var in service.UploadInput
	if access.Authorize(viewer, targetID).Outcome == access.Allowed {
		var err error
		in, err = h.readUpload(r)
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "Request body too large")
				return
			}
			// An unreadable form counts as an empty submission; validation
			// reports the missing fields.
			h.logger.Debug("unreadable upload form", slog.String("error", err.Error()))
			in = service.UploadInput{}
		}
	}

	result, err := h.profiles.SubmitUpload(r.Context(), viewer, targetID, in)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	switch {
	case result.Redirect != "":
		http.Redirect(w, r, result.Redirect, http.StatusFound)
	case result.HasErrors():
		writeJSON(w, http.StatusUnprocessableEntity, result.View)
	default:
		writeJSON(w, http.StatusCreated, UploadResponse{Created: result.Created, Profile: result.View})
	}
}

// target parses the profile id. Anonymous callers are sent to login for any
// path, valid or not; signed-in callers get 404 for a malformed id.
func (h *ProfileHandler) target(w http.ResponseWriter, r *http.Request, viewer *model.Principal) (int64, bool) {
	targetID, ok := pathID(r, "id")
	if ok {
		return targetID, true
	}
	if viewer == nil {
		http.Redirect(w, r, access.LoginPath(r.URL.Path), http.StatusFound)
		return 0, false
	}
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	return 0, false
}

// readUpload extracts the email and image from a multipart body. A missing
// file is not an error here; validation reports it as a field error.
func (h *ProfileHandler) readUpload(r *http.Request) (service.UploadInput, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return service.UploadInput{}, err
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	in := service.UploadInput{Email: r.PostFormValue(formFieldEmail)}

	file, header, err := formFile(r)
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil
	}
	if err != nil {
		return in, err
	}
	defer file.Close()

	// Read one byte past the limit so validation can tell the file is too big.
	data, err := io.ReadAll(io.LimitReader(file, h.maxUploadSize+1))
	if err != nil {
		return in, err
	}
	in.Filename = header.Filename
	in.Data = data
	return in, nil
}

func formFile(r *http.Request) (multipart.File, *multipart.FileHeader, error) {
	file, header, err := r.FormFile(formFieldImages)
	if errors.Is(err, http.ErrMissingFile) {
		return r.FormFile(formFieldImageAlias)
	}
	return file, header, err
}
