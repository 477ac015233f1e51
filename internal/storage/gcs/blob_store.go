// Package gcs provides a document store backed by Google Cloud Storage.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"

	cachestore "github.com/JakeFAU/gsc-indexer/internal/storage"
)

// Config captures the parameters required to reach the bucket.
type Config struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// DocumentStore keeps one object per key under an optional prefix.
type DocumentStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed document store.
func New(client *storage.Client, cfg Config) (*DocumentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &DocumentStore{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// ObjectName returns the object path used for key.
func (s *DocumentStore) ObjectName(key string) string {
	return path.Join(s.prefix, key+".json")
}

// Load downloads the document for key.
func (s *DocumentStore) Load(ctx context.Context, key string) ([]byte, error) {
	name := s.ObjectName(key)
	reader, err := s.client.Bucket(s.bucket).Object(name).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("gs://%s/%s: %w", s.bucket, name, cachestore.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("open gs://%s/%s: %w", s.bucket, name, err)
	}
	defer reader.Close() //nolint:errcheck // read-only

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read gs://%s/%s: %w", s.bucket, name, err)
	}
	return data, nil
}

// Save uploads the document, replacing any previous version.
func (s *DocumentStore) Save(ctx context.Context, key string, data []byte) error {
	name := s.ObjectName(key)
	writer := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return fmt.Errorf("write object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("write object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer for gs://%s/%s: %w", s.bucket, name, err)
	}
	return nil
}
