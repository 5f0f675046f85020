// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/dooropener/dooropener/internal/middleware"
	"github.com/dooropener/dooropener/internal/service"
)

// Version is reported by the service info endpoint.
const Version = "1.0.0"

// Handler serves the service info and fallback routes.
type Handler struct {
	deviceAuthMode string
}

// New creates a new Handler instance.
func New(deviceAuthMode string) *Handler {
	return &Handler{deviceAuthMode: deviceAuthMode}
}

// Hello describes the service.
// GET /
func (h *Handler) Hello(w http.ResponseWriter, r *http.Request) {
	response := map[string]string{
		"message":          "DoorOpener media service",
		"version":          Version,
		"device_auth_mode": h.deviceAuthMode,
	}
	writeJSON(w, http.StatusOK, response)
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// ErrorBody carries a machine-readable code, a message and optional field errors.
type ErrorBody struct {
	Code    string              `json:"code"`
	Message string              `json:"message"`
	Fields  map[string][]string `json:"fields,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorBody{Code: code, Message: message}})
}

// writeServiceError maps service errors to HTTP responses. Internal details
// are logged, never returned.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, ErrorResponse{Error: ErrorBody{
			Code:    "VALIDATION_FAILED",
			Message: "Invalid input",
			Fields:  verr.Fields,
		}})
	case errors.Is(err, service.ErrAuth):
		writeError(w, http.StatusUnauthorized, "INVALID_CREDENTIALS", service.ErrAuth.Error())
	case errors.Is(err, service.ErrNotFound):
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, service.ErrAccessDenied):
		writeError(w, http.StatusForbidden, "FORBIDDEN", "Access denied")
	case errors.Is(err, service.ErrStorage), errors.Is(err, service.ErrBlob):
		logger.Error("dependency failure",
			slog.String("error", err.Error()),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusServiceUnavailable, "UNAVAILABLE", "Service temporarily unavailable")
	default:
		logger.Error("unhandled service error",
			slog.String("error", err.Error()),
			slog.String("endpoint", r.Method+" "+r.URL.Path),
			slog.String("request_id", middleware.GetRequestID(r.Context())),
		)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "An internal error occurred")
	}
}

// pathID parses a positive integer URL parameter.
func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
