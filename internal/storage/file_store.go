// Package storage persists attachment image blobs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"strings"

	"github.com/spf13/afero"
)

var (
	// ErrInvalidKey indicates a blob key that is empty or escapes the store root.
	ErrInvalidKey = errors.New("storage: invalid blob key")
	// ErrMissingFilesystem indicates a FileStore built without a filesystem.
	ErrMissingFilesystem = errors.New("storage: filesystem is required")
)

// FileStoreConfig configures a FileStore.
type FileStoreConfig struct {
	Fs        afero.Fs
	Root      string
	PublicURL string
}

// FileStore keeps blobs on a filesystem under Root and addresses them below PublicURL.
type FileStore struct {
	fs        afero.Fs
	root      string
	publicURL string
}

// NewFileStore validates the configuration and creates the root directory.
func NewFileStore(cfg FileStoreConfig) (*FileStore, error) {
	if cfg.Fs == nil {
		return nil, ErrMissingFilesystem
	}
	root := cfg.Root
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	if err := cfg.Fs.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root: %w", err)
	}
	return &FileStore{
		fs:        cfg.Fs,
		root:      root,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
	}, nil
}

// Put writes data under key and returns its public URL.
func (s *FileStore) Put(_ context.Context, key string, _ string, data []byte) (string, error) {
	cleaned, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	fullPath := path.Join(s.root, cleaned)
	if err := s.fs.MkdirAll(path.Dir(fullPath), 0o755); err != nil {
		return "", fmt.Errorf("storage: create directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, fullPath, data, 0o644); err != nil {
		return "", fmt.Errorf("storage: write blob: %w", err)
	}
	return s.publicURL + "/" + cleaned, nil
}

// Delete removes the blob stored under key. Missing blobs are not an error.
func (s *FileStore) Delete(_ context.Context, key string) error {
	cleaned, err := cleanKey(key)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(path.Join(s.root, cleaned)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("storage: delete blob: %w", err)
	}
	return nil
}

// Filesystem exposes the store root as a read-only filesystem for serving.
func (s *FileStore) Filesystem() afero.Fs {
	return afero.NewReadOnlyFs(afero.NewBasePathFs(s.fs, s.root))
}

func cleanKey(key string) (string, error) {
	trimmed := strings.TrimSpace(key)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	cleaned := path.Clean("/" + trimmed)
	if cleaned == "/" || strings.Contains(trimmed, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return strings.TrimPrefix(cleaned, "/"), nil
}
