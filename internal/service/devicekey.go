package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/repository"
)

// maxDeviceKeyNameLength bounds the free-form key label.
const maxDeviceKeyNameLength = 100

// DeviceKeyService issues and manages device keys for their owning principal.
type DeviceKeyService struct {
	keys      DeviceKeyStore
	authCache DeviceAuthInvalidator
	env       string
	logger    *slog.Logger
	now       func() time.Time
}

// NewDeviceKeyService creates a new DeviceKeyService. authCache may be nil.
func NewDeviceKeyService(keys DeviceKeyStore, authCache DeviceAuthInvalidator, env string, logger *slog.Logger) *DeviceKeyService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DeviceKeyService{
		keys:      keys,
		authCache: authCache,
		env:       env,
		logger:    logger,
		now:       time.Now,
	}
}

// Issue creates a key for owner. The plaintext key appears only in the response.
func (s *DeviceKeyService) Issue(ctx context.Context, owner *model.Principal, req model.DeviceKeyCreateRequest) (*model.DeviceKeyCreateResponse, error) {
	errs := FieldErrors{}
	for _, scope := range req.Scopes {
		if !slices.Contains(model.ValidScopes, scope) {
			errs.Add(FieldScopes, "Invalid scope: "+scope+". Valid scopes: "+strings.Join(model.ValidScopes, ", "))
		}
	}
	req.Name = strings.TrimSpace(req.Name)
	if len(req.Name) > maxDeviceKeyNameLength {
		errs.Add("name", fmt.Sprintf("Ensure this value has at most %d characters.", maxDeviceKeyNameLength))
	}
	if len(errs) > 0 {
		return nil, errs.asError()
	}

	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []string{model.ScopeFeedRead}
	}

	key, plaintext, err := s.create(ctx, owner.ID, req.Name, scopes, model.TierFree)
	if err != nil {
		return nil, err
	}

	s.logger.Info("device key created",
		slog.String("key_id", key.ID),
		slog.String("key_prefix", key.KeyPrefix),
		slog.Int64("principal_id", owner.ID),
	)

	return createResponse(key, plaintext), nil
}

// List returns owner's keys without secrets, newest first.
func (s *DeviceKeyService) List(ctx context.Context, owner *model.Principal) ([]model.DeviceKeyResponse, error) {
	keys, err := s.keys.ListDeviceKeysByUserID(ctx, owner.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	responses := make([]model.DeviceKeyResponse, 0, len(keys))
	for _, key := range keys {
		responses = append(responses, key.ToResponse())
	}
	return responses, nil
}

// Revoke revokes one of owner's active keys. Keys owned by someone else
// are reported as ErrNotFound.
func (s *DeviceKeyService) Revoke(ctx context.Context, owner *model.Principal, keyID string) error {
	key, err := s.ownedActiveKey(ctx, owner, keyID)
	if err != nil {
		return err
	}

	if err := s.keys.RevokeDeviceKey(ctx, key.ID); err != nil {
		if errors.Is(err, repository.ErrDeviceKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	s.forget(ctx, key.ID)

	s.logger.Info("device key revoked",
		slog.String("key_id", key.ID),
		slog.Int64("principal_id", owner.ID),
	)
	return nil
}

// Rotate replaces one of owner's active keys with a new key carrying the
// same name, scopes and tier. The new key is stored before the old one is revoked.
func (s *DeviceKeyService) Rotate(ctx context.Context, owner *model.Principal, keyID string) (*model.DeviceKeyRotateResponse, error) {
	oldKey, err := s.ownedActiveKey(ctx, owner, keyID)
	if err != nil {
		return nil, err
	}

	newKey, plaintext, err := s.create(ctx, owner.ID, oldKey.Name, oldKey.Scopes, oldKey.RateLimitTier)
	if err != nil {
		return nil, err
	}

	if err := s.keys.RevokeDeviceKey(ctx, oldKey.ID); err != nil {
		// The new key is already usable
		s.logger.Error("failed to revoke old device key during rotation",
			slog.String("key_id", oldKey.ID),
			slog.String("error", err.Error()),
		)
	}
	s.forget(ctx, oldKey.ID)

	s.logger.Info("device key rotated",
		slog.String("old_key_id", oldKey.ID),
		slog.String("new_key_id", newKey.ID),
		slog.Int64("principal_id", owner.ID),
	)

	return &model.DeviceKeyRotateResponse{
		OldKeyID:        oldKey.ID,
		OldKeyRevokedAt: s.now().UTC(),
		NewKey:          *createResponse(newKey, plaintext),
	}, nil
}

func (s *DeviceKeyService) ownedActiveKey(ctx context.Context, owner *model.Principal, keyID string) (*model.DeviceKey, error) {
	if keyID == "" {
		return nil, ErrNotFound
	}

	key, err := s.keys.GetDeviceKeyByID(ctx, keyID)
	if err != nil {
		if errors.Is(err, repository.ErrDeviceKeyNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}

	// Same answer for foreign and revoked keys to prevent enumeration
	if key.PrincipalID != owner.ID || key.IsRevoked() {
		return nil, ErrNotFound
	}
	return key, nil
}

func (s *DeviceKeyService) create(ctx context.Context, principalID int64, name string, scopes []string, tier string) (*model.DeviceKey, string, error) {
	generated, err := auth.GenerateDeviceKey(s.env)
	if err != nil {
		return nil, "", fmt.Errorf("generate device key: %w", err)
	}

	key := &model.DeviceKey{
		ID:            ulid.Make().String(),
		PrincipalID:   principalID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: tier,
		Name:          name,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.keys.CreateDeviceKey(ctx, key); err != nil {
		return nil, "", fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return key, generated.Plaintext, nil
}

func (s *DeviceKeyService) forget(ctx context.Context, keyID string) {
	if s.authCache == nil {
		return
	}
	if err := s.authCache.DeleteDeviceAuthByKeyID(ctx, keyID); err != nil {
		s.logger.Warn("failed to drop cached device auth",
			slog.String("key_id", keyID),
			slog.String("error", err.Error()),
		)
	}
}

func createResponse(key *model.DeviceKey, plaintext string) *model.DeviceKeyCreateResponse {
	return &model.DeviceKeyCreateResponse{
		ID:            key.ID,
		Key:           plaintext,
		Name:          key.Name,
		KeyPrefix:     key.KeyPrefix,
		Scopes:        key.Scopes,
		RateLimitTier: key.RateLimitTier,
		CreatedAt:     key.CreatedAt,
	}
}
