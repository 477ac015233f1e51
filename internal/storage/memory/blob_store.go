// Package memory keeps cache documents in-process, for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/gsc-indexer/internal/storage"
)

// DocumentStore stores documents in a map.
type DocumentStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// New creates an empty in-memory document store.
func New() *DocumentStore {
	return &DocumentStore{data: make(map[string][]byte)}
}

// Load returns a copy of the stored document.
func (s *DocumentStore) Load(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.data[key]
	if !ok {
		return nil, fmt.Errorf("memory load %q: %w", key, storage.ErrNotFound)
	}
	return append([]byte(nil), data...), nil
}

// Save stores a copy of data under key.
func (s *DocumentStore) Save(_ context.Context, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data[key] = append([]byte(nil), data...)
	return nil
}

// Keys returns the number of stored documents.
func (s *DocumentStore) Keys() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}
