// Package blob persists uploaded image bytes and resolves them to URLs.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Common blob store errors.
var (
	ErrInvalidLocator = errors.New("invalid blob locator")
	ErrEmptyObject    = errors.New("empty blob object")
)

// Locator is an opaque reference to stored bytes.
type Locator string

// Object is a file to persist.
type Object struct {
	Key         string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Store persists raw file bytes and turns locators into retrievable URLs.
type Store interface {
	Put(ctx context.Context, obj Object) (Locator, error)
	Resolve(ctx context.Context, loc Locator) (string, error)
	Delete(ctx context.Context, loc Locator) error
	Ping(ctx context.Context) error
}

// keyRoot is the top-level directory for uploaded images.
const keyRoot = "images"

// NewObjectKey returns a fresh object key of the form
// images/YYYY/MM/DD/<ulid><ext>. Only the filename's extension is kept.
func NewObjectKey(filename string, now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s/%04d/%02d/%02d/%s%s",
		keyRoot, now.Year(), int(now.Month()), now.Day(),
		strings.ToLower(ulid.Make().String()), safeExt(filename))
}

func safeExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > 5 {
		return ""
	}
	for _, r := range ext[1:] {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return ""
		}
	}
	return ext
}

// validateKey rejects keys that would escape the store's root.
func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return fmt.Errorf("%w: %q", ErrInvalidLocator, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidLocator, key)
	}
	for _, part := range strings.Split(key, "/") {
		if part == ".." || part == "." {
			return fmt.Errorf("%w: %q", ErrInvalidLocator, key)
		}
	}
	return nil
}

// joinURL appends key to base, inserting exactly one slash.
func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(key, "/")
}
