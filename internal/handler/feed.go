package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
)

// FeedUseCase produces the device feed.
type FeedUseCase interface {
	FetchAll(ctx context.Context, caller *model.DeviceAuthContext) ([]model.FeedItem, error)
}

// FeedHandler serves the device distribution feed.
type FeedHandler struct {
	feed   FeedUseCase
	logger *slog.Logger
}

// NewFeedHandler creates a new FeedHandler.
func NewFeedHandler(feed FeedUseCase, logger *slog.Logger) *FeedHandler {
	return &FeedHandler{feed: feed, logger: logger}
}

// List handles GET /api/v1/images
// The body is a bare JSON array of every record across all owners.
func (h *FeedHandler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.feed.FetchAll(r.Context(), auth.DeviceFromContext(r.Context()))
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	if items == nil {
		items = []model.FeedItem{}
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, items)
}
