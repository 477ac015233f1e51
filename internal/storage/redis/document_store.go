// Package redis keeps cache documents in Redis, one string value per site.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/gsc-indexer/internal/storage"
)

// DefaultPrefix namespaces cache keys.
const DefaultPrefix = "gsc-indexer:cache"

// Config controls the Redis document store.
type Config struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type commander interface {
	Get(ctx context.Context, key string) *goredis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
}

// DocumentStore reads and writes documents with GET and SET.
type DocumentStore struct {
	client commander
	prefix string
}

// NewClient dials a single-node client from cfg.
func NewClient(cfg Config) (*goredis.Client, error) {
	if cfg.Addr == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), nil
}

// New wraps an existing client.
func New(client commander, prefix string) (*DocumentStore, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &DocumentStore{client: client, prefix: prefix}, nil
}

// Key returns the Redis key used for a document.
func (s *DocumentStore) Key(key string) string {
	return s.prefix + ":" + key
}

// Load fetches the document for key.
func (s *DocumentStore) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.Key(key)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("redis get %s: %w", s.Key(key), storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", s.Key(key), err)
	}
	return data, nil
}

// Save stores the document without expiry; staleness is decided per entry.
func (s *DocumentStore) Save(ctx context.Context, key string, data []byte) error {
	if err := s.client.Set(ctx, s.Key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", s.Key(key), err)
	}
	return nil
}
