package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/dooropener/dooropener/internal/access"
	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/service"
)

// IdentityUseCase is the identity provider used by account endpoints.
type IdentityUseCase interface {
	Register(ctx context.Context, in service.RegisterInput) (*model.Principal, error)
	Authenticate(ctx context.Context, creds service.Credentials) (*model.Principal, error)
	StartSession(ctx context.Context, p *model.Principal) (*service.IssuedSession, error)
	EndSession(ctx context.Context, token string) error
}

// CookieConfig controls the session cookie.
type CookieConfig struct {
	Name   string
	Secure bool
}

// AccountHandler handles registration, login and logout.
type AccountHandler struct {
	identity IdentityUseCase
	cookie   CookieConfig
	logger   *slog.Logger
}

// NewAccountHandler creates a new AccountHandler.
func NewAccountHandler(identity IdentityUseCase, cookie CookieConfig, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{identity: identity, cookie: cookie, logger: logger}
}

type registerRequest struct {
	Username        string `json:"username"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	PasswordConfirm string `json:"password_confirm"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Next     string `json:"next"`
}

// LoginResponse is returned after a successful login.
type LoginResponse struct {
	Principal *model.Principal `json:"principal"`
	ExpiresAt time.Time        `json:"expires_at"`
	Redirect  string           `json:"redirect"`
}

// Register handles POST /register/
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeRequest(w, r, &req, func() {
		req.Username = r.PostFormValue("username")
		req.Email = r.PostFormValue("email")
		req.Password = r.PostFormValue("password")
		req.PasswordConfirm = r.PostFormValue("password_confirm")
	}) {
		return
	}

	principal, err := h.identity.Register(r.Context(), service.RegisterInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		PasswordConfirm: req.PasswordConfirm,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, principal)
}

// LoginPage handles GET /login/ and tells the client where to post credentials.
func (h *AccountHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "Authentication required",
		"login":   "/login/",
		"next":    safeNext(r.URL.Query().Get("next")),
	})
}

// Login handles POST /login/
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeRequest(w, r, &req, func() {
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
		req.Next = r.PostFormValue("next")
	}) {
		return
	}
	if req.Next == "" {
		req.Next = r.URL.Query().Get("next")
	}

	principal, err := h.identity.Authenticate(r.Context(), service.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	issued, err := h.identity.StartSession(r.Context(), principal)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    issued.Token,
		Path:     "/",
		Expires:  issued.Session.ExpiresAt,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	redirect := safeNext(req.Next)
	if redirect == "" {
		redirect = access.ProfilePath(principal.ID)
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		Principal: principal,
		ExpiresAt: issued.Session.ExpiresAt,
		Redirect:  redirect,
	})
}

// Logout handles POST /logout/
func (h *AccountHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(h.cookie.Name); err == nil && cookie.Value != "" {
		if err := h.identity.EndSession(r.Context(), cookie.Value); err != nil {
			writeServiceError(w, r, h.logger, err)
			return
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     h.cookie.Name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})

	if p := auth.PrincipalFromContext(r.Context()); p != nil {
		h.logger.Info("session ended", slog.Int64("principal_id", p.ID))
	}
	w.WriteHeader(http.StatusNoContent)
}

// decodeRequest reads a JSON body into dst, or runs fromForm for form posts.
// It writes a 400 and returns false when the body cannot be parsed.
func decodeRequest(w http.ResponseWriter, r *http.Request, dst any, fromForm func()) bool {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
			return false
		}
		return true
	}

	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
			return false
		}
	} else if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body")
		return false
	}
	fromForm()
	return true
}

// safeNext only accepts local absolute paths, so login cannot be used as an
// open redirect. Browsers drop tabs and newlines from URLs, so "/\t/host"
// would become "//host"; any control character is rejected.
func safeNext(next string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.Contains(next, `\`) {
		return ""
	}
	if strings.IndexFunc(next, func(r rune) bool { return r < 0x20 || r == 0x7f }) >= 0 {
		return ""
	}
	return next
}
