// Package photostore holds uploaded photo payloads for the reference server,
// on the local filesystem or in an S3 bucket.
package photostore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound means no object is stored under the key.
var ErrNotFound = errors.New("photo not found")

// Store reads and writes photo objects by key.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	Close() error
}

// NewKey returns a fresh object key grouped by owner and photo kind. The
// extension follows the content type when one is known.
func NewKey(ownerID, kind, contentType string) string {
	return path.Join(ownerID, kind, uuid.NewString()+extension(contentType))
}

var commonExt = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/heic": ".heic",
}

func extension(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return ""
	}
	if ext, ok := commonExt[mediaType]; ok {
		return ext
	}
	if exts, _ := mime.ExtensionsByType(mediaType); len(exts) > 0 {
		return exts[0]
	}
	return ""
}

// ValidKey reports whether key is a relative slash-separated path without
// parent references.
func ValidKey(key string) bool {
	if key == "" || strings.HasPrefix(key, "/") || strings.Contains(key, "\\") {
		return false
	}
	for _, part := range strings.Split(key, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
	}
	return true
}

// Config selects and configures a Store.
type Config struct {
	Backend string // "fs" (default) or "s3"
	Dir     string
	S3      S3Config
}

// Open returns the store cfg describes.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "fs":
		return NewFS(cfg.Dir)
	case "s3":
		return NewS3(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown photo backend %q", cfg.Backend)
	}
}
