// Package cache keeps the last known index status of every URL of a site and
// decides which URLs need a fresh inspection.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/storage"
)

// DefaultTTL is how long a non-indexable status is trusted.
const DefaultTTL = 14 * 24 * time.Hour

// Store is the in-memory URL to CacheEntry map of one site.
type Store struct {
	mu      sync.RWMutex
	entries map[string]indexer.CacheEntry
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{entries: make(map[string]indexer.CacheEntry)}
}

// Get returns the entry for url.
func (s *Store) Get(url string) (indexer.CacheEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[url]
	return entry, ok
}

// Put records entry for url, replacing any previous one.
func (s *Store) Put(url string, entry indexer.CacheEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[url] = entry
}

// Len returns the number of URLs in the store.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Snapshot returns a copy of the entries.
func (s *Store) Snapshot() map[string]indexer.CacheEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]indexer.CacheEntry, len(s.entries))
	for url, entry := range s.entries {
		out[url] = entry
	}
	return out
}

// Cache loads and persists stores through a storage backend.
type Cache struct {
	backend storage.Backend
	ttl     time.Duration
	logger  *zap.Logger
}

// New creates a Cache. A non-positive ttl falls back to DefaultTTL.
func New(backend storage.Backend, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{backend: backend, ttl: ttl, logger: logger}
}

// TTL returns the staleness window.
func (c *Cache) TTL() time.Duration {
	return c.ttl
}

// Load reads the store for siteKey. A missing document yields an empty store.
// An unreadable document is logged and also yields an empty store.
func (c *Cache) Load(ctx context.Context, siteKey string) (*Store, error) {
	data, err := c.backend.Load(ctx, siteKey)
	if errors.Is(err, storage.ErrNotFound) {
		c.logger.Debug("no cache document", zap.String("site_key", siteKey))
		return NewStore(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load cache %s: %w", siteKey, err)
	}

	entries := make(map[string]indexer.CacheEntry)
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("discarding unreadable cache document",
			zap.String("site_key", siteKey),
			zap.Error(err),
		)
		return NewStore(), nil
	}
	c.logger.Debug("loaded cache document",
		zap.String("site_key", siteKey),
		zap.Int("entries", len(entries)),
	)
	return &Store{entries: entries}, nil
}

// Persist overwrites the document for siteKey with the full store.
func (c *Cache) Persist(ctx context.Context, siteKey string, store *Store) error {
	data, err := json.MarshalIndent(store.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode cache %s: %w", siteKey, err)
	}
	if err := c.backend.Save(ctx, siteKey, data); err != nil {
		return fmt.Errorf("persist cache %s: %w", siteKey, err)
	}
	return nil
}

// ShouldRecheck applies the cache's TTL to entry.
func (c *Cache) ShouldRecheck(entry indexer.CacheEntry, now time.Time) bool {
	return ShouldRecheck(entry, now, c.ttl)
}

// ShouldRecheck reports whether entry needs a fresh inspection: always for
// indexable statuses, otherwise once it is older than ttl.
func ShouldRecheck(entry indexer.CacheEntry, now time.Time, ttl time.Duration) bool {
	if indexer.IsIndexable(entry.Status) {
		return true
	}
	return now.Sub(entry.LastCheckedAt) > ttl
}
