package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/cache"
	"github.com/dooropener/dooropener/internal/metrics"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/repository"
)

// IdentityService registers principals, checks credentials and manages sessions.
type IdentityService struct {
	users    UserStore
	sessions SessionStore
	signer   *auth.SessionSigner
	ttl      time.Duration
	metrics  metrics.Recorder
	logger   *slog.Logger
	now      func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// NewIdentityService creates a new IdentityService.
func NewIdentityService(users UserStore, sessions SessionStore, signer *auth.SessionSigner, ttl time.Duration, recorder metrics.Recorder, logger *slog.Logger) *IdentityService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &IdentityService{
		users:    users,
		sessions: sessions,
		signer:   signer,
		ttl:      ttl,
		metrics:  recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// Register validates in and creates a new principal.
func (s *IdentityService) Register(ctx context.Context, in RegisterInput) (*model.Principal, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	if errs := ValidateRegistration(in); len(errs) > 0 {
		return nil, errs.asError()
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &model.Principal{
		Username:     in.Username,
		Email:        in.Email,
		PasswordHash: hash,
	}

	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrUsernameExists) {
			errs := FieldErrors{}
			errs.Add(FieldUsername, "A user with that username already exists.")
			return nil, errs.asError()
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.logger.Info("principal registered", slog.Int64("principal_id", user.ID))
	return user, nil
}

// Credentials is a login form submission.
type Credentials struct {
	Username string
	Password string
}

// Authenticate returns the principal matching creds or ErrAuth.
// Unknown usernames still pay for one hash verification.
func (s *IdentityService) Authenticate(ctx context.Context, creds Credentials) (*model.Principal, error) {
	username := strings.TrimSpace(creds.Username)
	if username == "" || creds.Password == "" {
		s.loginFailed("missing_credentials")
		return nil, ErrAuth
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		if !errors.Is(err, repository.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %w", ErrStorage, err)
		}
		_, _ = auth.VerifyPassword(creds.Password, s.timingHash())
		s.loginFailed("unknown_user")
		return nil, ErrAuth
	}

	ok, err := auth.VerifyPassword(creds.Password, user.PasswordHash)
	if err != nil || !ok {
		s.loginFailed("bad_password")
		return nil, ErrAuth
	}

	s.metrics.IncLoginSucceeded()
	return user, nil
}

func (s *IdentityService) loginFailed(reason string) {
	s.metrics.IncLoginFailed()
	s.logger.Warn("login failed", slog.String("reason", reason))
}

func (s *IdentityService) timingHash() string {
	s.dummyOnce.Do(func() {
		hash, err := auth.HashPassword(ulid.Make().String())
		if err == nil {
			s.dummyHash = hash
		}
	})
	return s.dummyHash
}

// IssuedSession is a new session and its signed cookie token.
type IssuedSession struct {
	Session *model.Session
	Token   string
}

// StartSession opens a session for p.
func (s *IdentityService) StartSession(ctx context.Context, p *model.Principal) (*IssuedSession, error) {
	now := s.now().UTC()
	session := &model.Session{
		ID:          ulid.Make().String(),
		PrincipalID: p.ID,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
	}

	token, err := s.signer.Sign(session.ID, session.PrincipalID, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return nil, err
	}

	if err := s.sessions.SetSession(ctx, session); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	s.logger.Info("session started", slog.Int64("principal_id", p.ID))
	return &IssuedSession{Session: session, Token: token}, nil
}

// CurrentSession returns the principal bound to token, or nil when token
// does not name a live session. Errors are only returned for store failures.
func (s *IdentityService) CurrentSession(ctx context.Context, token string) (*model.Principal, error) {
	if token == "" {
		return nil, nil
	}

	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil, nil //nolint:nilerr
	}

	session, err := s.sessions.GetSession(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if session.PrincipalID != claims.PrincipalID || session.IsExpired(s.now()) {
		return nil, nil
	}

	user, err := s.users.GetUserByID(ctx, session.PrincipalID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	return user, nil
}

// EndSession destroys the session named by token. Unknown or invalid
// tokens are ignored.
func (s *IdentityService) EndSession(ctx context.Context, token string) error {
	claims, err := s.signer.Verify(token)
	if err != nil {
		return nil //nolint:nilerr
	}
	if err := s.sessions.DeleteSession(ctx, claims.SessionID); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}
