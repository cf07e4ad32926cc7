package photostore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FS stores objects as files under a base directory. The content type is
// not persisted; callers keep it alongside the key.
type FS struct {
	baseDir string
}

// NewFS creates the base directory if needed.
func NewFS(baseDir string) (*FS, error) {
	if baseDir == "" {
		return nil, errors.New("photo dir is required")
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create photo dir: %w", err)
	}
	abs, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("resolve photo dir: %w", err)
	}
	return &FS{baseDir: filepath.Clean(abs)}, nil
}

// safePath maps key into the base directory, refusing keys that escape it.
func (f *FS) safePath(key string) (string, error) {
	if !ValidKey(key) {
		return "", fmt.Errorf("invalid photo key %q", key)
	}
	resolved := filepath.Clean(filepath.Join(f.baseDir, filepath.FromSlash(key)))
	if !strings.HasPrefix(resolved, f.baseDir+string(os.PathSeparator)) {
		return "", fmt.Errorf("invalid photo key %q", key)
	}
	return resolved, nil
}

func (f *FS) Put(ctx context.Context, key string, data []byte, contentType string) error {
	p, err := f.safePath(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("create photo dir: %w", err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write photo: %w", err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write photo: %w", err)
	}
	return nil
}

func (f *FS) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.safePath(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("read photo: %w", err)
	}
	return data, nil
}

func (f *FS) Delete(ctx context.Context, key string) error {
	p, err := f.safePath(key)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func (f *FS) Exists(ctx context.Context, key string) (bool, error) {
	p, err := f.safePath(key)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return err == nil, err
}

func (f *FS) Close() error { return nil }
