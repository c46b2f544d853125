// Package store persists fetched resources under identifier-derived keys.
//
// Two backends are provided. [FileStore] writes into a local directory and is
// the default. [BlobStore] writes into any gocloud.dev bucket (mem://,
// file://, gs://, s3://). Both refuse to overwrite an existing key and never
// leave a partially written object behind.
package store

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"

	"github.com/torosent/rangefetch/internal/resource"
)

var (
	// ErrExists is returned by Write when the key is already present.
	ErrExists = errors.New("resource already stored")
	// ErrLocked is returned when another process holds the store directory.
	ErrLocked = errors.New("store is locked by another run")
	// ErrInvalidKey is returned when a key template escapes the store root.
	ErrInvalidKey = errors.New("invalid storage key")
)

// DefaultKeyTemplate is the key used when none is configured.
const DefaultKeyTemplate resource.Template = "book_{id}.txt"

// Store answers "is this identifier already persisted" and persists new
// resources. Implementations are safe for concurrent use.
type Store interface {
	Exists(ctx context.Context, id resource.ID) (bool, error)
	Write(ctx context.Context, id resource.ID, data []byte) error
	Key(id resource.ID) string
	URI(id resource.ID) string
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	// Location is a directory path or a bucket URL with a scheme.
	Location string
	// KeyTemplate maps identifiers to keys relative to Location.
	KeyTemplate resource.Template
}

// New opens the backend named by cfg.Location. Values with a URL scheme are
// opened as blob buckets; anything else is treated as a directory.
func New(ctx context.Context, cfg Config) (Store, error) {
	keys := cfg.KeyTemplate
	if strings.TrimSpace(string(keys)) == "" {
		keys = DefaultKeyTemplate
	}
	if err := ValidateKeyTemplate(keys); err != nil {
		return nil, err
	}

	location := strings.TrimSpace(cfg.Location)
	if location == "" {
		location = "."
	}

	if IsBucketURL(location) {
		return OpenBlobStore(ctx, location, keys)
	}
	return NewFileStore(location, keys)
}

// IsBucketURL reports whether location names a blob bucket rather than a path.
// Single-letter schemes are treated as Windows drive letters.
func IsBucketURL(location string) bool {
	u, err := url.Parse(location)
	if err != nil {
		return false
	}
	return len(u.Scheme) > 1
}

// ValidateKeyTemplate checks that keys contain the identifier placeholder and
// stay inside the store root.
func ValidateKeyTemplate(keys resource.Template) error {
	if err := keys.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidKey, err)
	}
	return validateKey(keys.Expand(1))
}

func validateKey(key string) error {
	if !filepath.IsLocal(filepath.FromSlash(key)) {
		return fmt.Errorf("%w: %q escapes the store root", ErrInvalidKey, key)
	}
	return nil
}
