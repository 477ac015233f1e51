// Package local implements a filesystem document store, one JSON file per key.
package local

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/JakeFAU/gsc-indexer/internal/storage"
)

// DefaultDir is where cache documents live when no directory is configured.
const DefaultDir = ".cache"

// Config captures the parameters for the local filesystem store.
type Config struct {
	// BaseDir is the directory holding <key>.json files.
	BaseDir string `mapstructure:"dir" yaml:"dir"`
}

// DocumentStore reads and writes documents on the local filesystem.
type DocumentStore struct {
	baseDir string
}

// New creates a filesystem-backed store, creating the directory if needed.
func New(cfg Config) (*DocumentStore, error) {
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		baseDir = DefaultDir
	}

	info, err := os.Stat(baseDir)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("failed to create cache directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("failed to stat cache directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("cache directory path %q is not a directory", baseDir)
	}

	return &DocumentStore{baseDir: baseDir}, nil
}

// Path returns the file that holds the document for key.
func (s *DocumentStore) Path(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", fmt.Errorf("key is required")
	}
	fullPath := filepath.Join(s.baseDir, key+".json")

	cleanBaseDir := filepath.Clean(s.baseDir)
	if filepath.Dir(filepath.Clean(fullPath)) != cleanBaseDir {
		return "", fmt.Errorf("path traversal detected for key %q", key)
	}
	return fullPath, nil
}

// Load reads the document for key.
func (s *DocumentStore) Load(_ context.Context, key string) ([]byte, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, err
	}
	// #nosec G304 -- path is confined to the cache directory.
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", path, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Save writes the document to a temp file in the same directory and renames it
// over the target, so readers never see a half-written cache.
func (s *DocumentStore) Save(_ context.Context, key string, data []byte) error {
	path, err := s.Path(key)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.baseDir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename %s: %w", path, err)
	}
	return nil
}
