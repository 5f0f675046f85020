package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/dooropener/dooropener/internal/auth"
	"github.com/dooropener/dooropener/internal/model"
	"github.com/dooropener/dooropener/internal/repository"
)

type output struct {
	PrincipalID int64    `json:"principal_id"`
	Username    string   `json:"username"`
	KeyID       string   `json:"key_id"`
	Key         string   `json:"key"`
	KeyPrefix   string   `json:"key_prefix"`
	Scopes      []string `json:"scopes"`
	Tier        string   `json:"rate_limit_tier"`
}

func main() {
	var (
		databaseURL = flag.String("database-url", os.Getenv("DATABASE_URL"), "PostgreSQL connection string")
		username    = flag.String("username", "", "Principal that owns the device key")
		email       = flag.String("email", "", "Email used when the principal has to be created")
		password    = flag.String("password", os.Getenv("BOOTSTRAP_PASSWORD"), "Password used when the principal has to be created")
		name        = flag.String("name", "bootstrap", "Device key name")
		scopesInput = flag.String("scopes", model.ScopeFeedRead, "Comma-separated scopes (feed:read,admin)")
		tier        = flag.String("tier", model.TierUnlimited, "Rate limit tier (free,pro,unlimited)")
		env         = flag.String("env", auth.EnvLive, "Key environment (live or test)")
		migrate     = flag.Bool("migrate", false, "Apply database migrations first")
		format      = flag.String("format", "plain", "Output format: plain or json")
	)
	flag.Parse()

	if *databaseURL == "" {
		fatal("DATABASE_URL is required")
	}
	if strings.TrimSpace(*username) == "" {
		fatal("-username is required")
	}
	if _, ok := model.TierConfigs[*tier]; !ok {
		fatal("invalid tier: " + *tier)
	}

	scopes, err := parseScopes(*scopesInput)
	if err != nil {
		fatal(err.Error())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repo, err := repository.New(ctx, *databaseURL)
	if err != nil {
		fatal("connect database: " + err.Error())
	}
	defer repo.Close()

	if *migrate {
		if err := repo.Migrate(ctx); err != nil {
			fatal("migrate: " + err.Error())
		}
	}

	principal, err := ensurePrincipal(ctx, repo, strings.TrimSpace(*username), *email, *password)
	if err != nil {
		fatal(err.Error())
	}

	generated, err := auth.GenerateDeviceKey(*env)
	if err != nil {
		fatal("generate device key: " + err.Error())
	}

	key := &model.DeviceKey{
		ID:            ulid.Make().String(),
		PrincipalID:   principal.ID,
		KeyHash:       generated.Hash,
		KeyPrefix:     generated.Prefix,
		Scopes:        scopes,
		RateLimitTier: *tier,
		Name:          *name,
		CreatedAt:     time.Now().UTC(),
	}

	if err := repo.CreateDeviceKey(ctx, key); err != nil {
		fatal("create device key: " + err.Error())
	}

	out := output{
		PrincipalID: principal.ID,
		Username:    principal.Username,
		KeyID:       key.ID,
		Key:         generated.Plaintext,
		KeyPrefix:   key.KeyPrefix,
		Scopes:      scopes,
		Tier:        key.RateLimitTier,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Key)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fatal("invalid format; use plain or json")
	}
}

func fatal(msg string) {
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}

func parseScopes(input string) ([]string, error) {
	parts := strings.Split(input, ",")
	scopes := make([]string, 0, len(parts))
	for _, part := range parts {
		scope := strings.TrimSpace(part)
		if scope == "" {
			continue
		}
		if !slices.Contains(model.ValidScopes, scope) {
			return nil, fmt.Errorf("invalid scope: %s", scope)
		}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = []string{model.ScopeFeedRead}
	}
	return scopes, nil
}

// ensurePrincipal returns the named principal, creating it when a password is given.
func ensurePrincipal(ctx context.Context, repo *repository.Repository, username, email, password string) (*model.Principal, error) {
	existing, err := repo.GetUserByUsername(ctx, username)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, repository.ErrUserNotFound) {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if password == "" {
		return nil, fmt.Errorf("user %s does not exist; pass -password to create it", username)
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &model.Principal{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}
