// Package msgstore keeps the attachment snapshots referenced by delivery log
// entries. A snapshot is an opaque blob addressed by key; callers own the
// encoding.
package msgstore

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound is returned when a requested snapshot does not exist.
	ErrNotFound = errors.New("msgstore: snapshot not found")
	// ErrInvalidKey is returned for empty keys and keys that escape the store root.
	ErrInvalidKey = errors.New("msgstore: invalid snapshot key")
)

// Store is implemented by every snapshot backend.
type Store interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Config holds configuration for creating a Store.
type Config struct {
	Type       string `mapstructure:"type"` // "local", "s3" or "memory"
	Path       string `mapstructure:"path"`
	S3Bucket   string `mapstructure:"s3_bucket"`
	S3Prefix   string `mapstructure:"s3_prefix"`
	S3Endpoint string `mapstructure:"s3_endpoint"`
	S3Region   string `mapstructure:"s3_region"`
}

// New creates a Store based on cfg. An empty or unknown type falls back to
// local storage.
func New(ctx context.Context, cfg Config, logger zerolog.Logger) (Store, error) {
	switch cfg.Type {
	case "local":
		return NewLocalFileStore(cfg.Path)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "memory":
		return NewMemoryStore(), nil
	default:
		logger.Warn().
			Str("type", cfg.Type).
			Msg("unsupported or empty snapshot store type, defaulting to local")
		return NewLocalFileStore(cfg.Path)
	}
}

// NewKey returns a fresh snapshot key partitioned by the UTC day of now.
func NewKey(now time.Time) string {
	return now.UTC().Format("2006/01/02") + "/" + uuid.NewString() + ".json"
}

func validateKey(key string) error {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, `\`) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	if path.Clean(key) != key {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	for _, seg := range strings.Split(key, "/") {
		if seg == ".." || seg == "." {
			return fmt.Errorf("%w: %q", ErrInvalidKey, key)
		}
	}
	return nil
}
