// Package storage defines the document store the status cache persists through.
// Each backend keeps one opaque document per key; the cache owns the encoding.
package storage

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Load when no document exists for the key.
var ErrNotFound = errors.New("document not found")

// Backend loads and saves whole documents by key.
type Backend interface {
	// Load returns the document stored under key, or ErrNotFound.
	Load(ctx context.Context, key string) ([]byte, error)
	// Save overwrites the document stored under key.
	Save(ctx context.Context, key string, data []byte) error
}
