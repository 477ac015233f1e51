// Package config loads and validates indexer configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/JakeFAU/gsc-indexer/internal/storage/gcs"
	"github.com/JakeFAU/gsc-indexer/internal/storage/local"
	"github.com/JakeFAU/gsc-indexer/internal/storage/postgres"
	"github.com/JakeFAU/gsc-indexer/internal/storage/redis"
)

// EnvPrefix namespaces environment overrides, e.g. GSC_INDEXER_BATCH_SIZE=25.
const EnvPrefix = "GSC_INDEXER"

// Cache backends.
const (
	BackendLocal    = "local"
	BackendGCS      = "gcs"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendMemory   = "memory"
)

// flagKeys maps CLI flag names onto configuration keys.
var flagKeys = map[string]string{
	"client-email": "auth.client_email",
	"private-key":  "auth.private_key",
	"path":         "auth.credentials_path",
	"rpm-retry":    "quota.rpm_retry",
	"batch-size":   "batch.size",
	"metrics-addr": "metrics.addr",
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Batch   BatchConfig   `mapstructure:"batch"`
	Cache   CacheConfig   `mapstructure:"cache"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	Quota   QuotaConfig   `mapstructure:"quota"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Sitemap SitemapConfig `mapstructure:"sitemap"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	PubSub  PubSubConfig  `mapstructure:"pubsub"`
	Lock    LockConfig    `mapstructure:"lock"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// BatchConfig sizes the inspection fan-out.
type BatchConfig struct {
	Size int `mapstructure:"size"`
}

// CacheConfig selects and configures the status cache backend.
type CacheConfig struct {
	// Config carries cache.dir for the local backend.
	local.Config `mapstructure:",squash"`

	Backend  string          `mapstructure:"backend"`
	TTL      time.Duration   `mapstructure:"ttl"`
	GCS      gcs.Config      `mapstructure:"gcs"`
	Redis    redis.Config    `mapstructure:"redis"`
	Postgres postgres.Config `mapstructure:"postgres"`
}

// HTTPConfig configures the console API transport.
type HTTPConfig struct {
	MaxRetries        int           `mapstructure:"max_retries"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
}

// QuotaConfig drives the metadata 429 ladder.
type QuotaConfig struct {
	RPMRetry     bool          `mapstructure:"rpm_retry"`
	MaxRetries   int           `mapstructure:"max_retries"`
	BaseInterval time.Duration `mapstructure:"base_interval"`
}

// AuthConfig names the service account.
type AuthConfig struct {
	ClientEmail     string `mapstructure:"client_email"`
	PrivateKey      string `mapstructure:"private_key"`
	CredentialsPath string `mapstructure:"credentials_path"`
}

// SitemapConfig controls the sitemap walker.
type SitemapConfig struct {
	MaxDepth  int    `mapstructure:"max_depth"`
	UserAgent string `mapstructure:"user_agent"`
}

// MetricsConfig exposes run metrics.
type MetricsConfig struct {
	Addr     string `mapstructure:"addr"`
	Textfile string `mapstructure:"textfile"`
}

// PubSubConfig holds metadata for run event notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// LockConfig selects the per-site lock.
type LockConfig struct {
	RedisAddr string        `mapstructure:"redis_addr"`
	TTL       time.Duration `mapstructure:"ttl"`
}

// LoadDotEnv reads .env style files into the process environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("load %s: %w", path, err)
		}
	}
	return nil
}

// Load builds a Config from disk, environment and changed flags, in rising precedence.
func Load(path string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for name, key := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", false)
	v.SetDefault("batch.size", 50)
	v.SetDefault("cache.backend", BackendLocal)
	v.SetDefault("cache.dir", local.DefaultDir)
	v.SetDefault("cache.ttl", "336h")
	v.SetDefault("cache.gcs.bucket", "")
	v.SetDefault("cache.gcs.prefix", "gsc-indexer")
	v.SetDefault("cache.redis.addr", "")
	v.SetDefault("cache.redis.password", "")
	v.SetDefault("cache.redis.db", 0)
	v.SetDefault("cache.redis.prefix", redis.DefaultPrefix)
	v.SetDefault("cache.postgres.dsn", "")
	v.SetDefault("cache.postgres.table", postgres.DefaultTable)
	v.SetDefault("http.max_retries", 5)
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.requests_per_second", 0)
	v.SetDefault("http.burst", 1)
	v.SetDefault("quota.rpm_retry", false)
	v.SetDefault("quota.max_retries", 3)
	v.SetDefault("quota.base_interval", "60s")
	v.SetDefault("auth.client_email", "")
	v.SetDefault("auth.private_key", "")
	v.SetDefault("auth.credentials_path", "")
	v.SetDefault("sitemap.max_depth", 3)
	v.SetDefault("sitemap.user_agent", "")
	v.SetDefault("metrics.addr", "")
	v.SetDefault("metrics.textfile", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.ttl", "2h")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Batch.Size <= 0 {
		return fmt.Errorf("batch.size must be > 0")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be > 0")
	}
	switch c.Cache.Backend {
	case BackendLocal, BackendMemory:
	case BackendGCS:
		if c.Cache.GCS.Bucket == "" {
			return fmt.Errorf("cache.gcs.bucket must be set for the gcs backend")
		}
	case BackendRedis:
		if c.Cache.Redis.Addr == "" {
			return fmt.Errorf("cache.redis.addr must be set for the redis backend")
		}
	case BackendPostgres:
		if c.Cache.Postgres.DSN == "" {
			return fmt.Errorf("cache.postgres.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.HTTP.RequestsPerSecond < 0 {
		return fmt.Errorf("http.requests_per_second must be >= 0")
	}
	if c.Quota.MaxRetries < 0 {
		return fmt.Errorf("quota.max_retries must be >= 0")
	}
	if c.Quota.BaseInterval <= 0 {
		return fmt.Errorf("quota.base_interval must be > 0")
	}
	if (c.Auth.ClientEmail == "") != (c.Auth.PrivateKey == "") {
		return fmt.Errorf("auth.client_email and auth.private_key must be set together")
	}
	if c.PubSub.Topic != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic is set")
	}
	return nil
}
