package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
)

// DeviceKeyUseCase manages device keys for the session principal.
type DeviceKeyUseCase interface {
	Issue(ctx context.Context, owner *model.Principal, req model.DeviceKeyCreateRequest) (*model.DeviceKeyCreateResponse, error)
	List(ctx context.Context, owner *model.Principal) ([]model.DeviceKeyResponse, error)
	Revoke(ctx context.Context, owner *model.Principal, keyID string) error
	Rotate(ctx context.Context, owner *model.Principal, keyID string) (*model.DeviceKeyRotateResponse, error)
}

// DeviceKeyHandler handles device key management endpoints.
type DeviceKeyHandler struct {
	keys   DeviceKeyUseCase
	logger *slog.Logger
}

// NewDeviceKeyHandler creates a new DeviceKeyHandler.
func NewDeviceKeyHandler(keys DeviceKeyUseCase, logger *slog.Logger) *DeviceKeyHandler {
	return &DeviceKeyHandler{keys: keys, logger: logger}
}

// Create handles POST /api/v1/device-keys
func (h *DeviceKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	owner := auth.PrincipalFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	// An empty body issues a feed:read key.
	var req model.DeviceKeyCreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	created, err := h.keys.Issue(r.Context(), owner, req)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/device-keys
func (h *DeviceKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	owner := auth.PrincipalFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	keys, err := h.keys.List(r.Context(), owner)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

// Revoke handles DELETE /api/v1/device-keys/{key_id}
func (h *DeviceKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	owner := auth.PrincipalFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	if err := h.keys.Revoke(r.Context(), owner, chi.URLParam(r, "key_id")); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Rotate handles POST /api/v1/device-keys/{key_id}/rotate
func (h *DeviceKeyHandler) Rotate(w http.ResponseWriter, r *http.Request) {
	owner := auth.PrincipalFromContext(r.Context())
	if owner == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	rotated, err := h.keys.Rotate(r.Context(), owner, chi.URLParam(r, "key_id"))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, rotated)
}
