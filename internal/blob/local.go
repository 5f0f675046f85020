package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStore keeps blobs on the local filesystem and serves them from
// baseURL + urlPrefix.
type LocalStore struct {
	root      string
	publicURL string
}

// NewLocalStore creates the root directory if needed.
func NewLocalStore(root, baseURL, urlPrefix string) (*LocalStore, error) {
	if root == "" {
		return nil, errors.New("local blob root is required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &LocalStore{
		root:      root,
		publicURL: joinURL(baseURL, urlPrefix),
	}, nil
}

// Root returns the directory blobs are written under.
func (s *LocalStore) Root() string {
	return s.root
}

// Put writes obj to a temporary file and renames it into place, so a
// locator is only returned once the bytes are fully on disk.
func (s *LocalStore) Put(ctx context.Context, obj Object) (Locator, error) {
	if err := validateKey(obj.Key); err != nil {
		return "", err
	}
	if obj.Body == nil {
		return "", ErrEmptyObject
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	dst := filepath.Join(s.root, filepath.FromSlash(obj.Key))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", fmt.Errorf("create blob dir: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".upload-*")
	if err != nil {
		return "", fmt.Errorf("create temp blob: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	n, err := io.Copy(tmp, obj.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return "", fmt.Errorf("write blob: %w", err)
	}
	if n == 0 {
		return "", ErrEmptyObject
	}

	if err := os.Rename(tmpName, dst); err != nil {
		return "", fmt.Errorf("commit blob: %w", err)
	}

	return Locator(obj.Key), nil
}

// Resolve returns the public URL for loc.
func (s *LocalStore) Resolve(_ context.Context, loc Locator) (string, error) {
	if err := validateKey(string(loc)); err != nil {
		return "", err
	}
	return joinURL(s.publicURL, string(loc)), nil
}

// Delete removes the blob. Deleting a missing blob is not an error.
func (s *LocalStore) Delete(_ context.Context, loc Locator) error {
	if err := validateKey(string(loc)); err != nil {
		return err
	}
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(string(loc))))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete blob: %w", err)
	}
	return nil
}

// Ping checks that the root directory is still present.
func (s *LocalStore) Ping(_ context.Context) error {
	info, err := os.Stat(s.root)
	if err != nil {
		return fmt.Errorf("stat blob root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("blob root %q is not a directory", s.root)
	}
	return nil
}
