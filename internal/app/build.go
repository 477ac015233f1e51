package app

import (
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/pubsub"
	gcsclient "cloud.google.com/go/storage"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/auth"
	"github.com/JakeFAU/gsc-indexer/internal/cache"
	"github.com/JakeFAU/gsc-indexer/internal/clock/system"
	"github.com/JakeFAU/gsc-indexer/internal/config"
	"github.com/JakeFAU/gsc-indexer/internal/gsc"
	"github.com/JakeFAU/gsc-indexer/internal/id/uuid"
	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/lock"
	"github.com/JakeFAU/gsc-indexer/internal/policy/ratelimit"
	"github.com/JakeFAU/gsc-indexer/internal/progress"
	pspublisher "github.com/JakeFAU/gsc-indexer/internal/publisher/pubsub"
	"github.com/JakeFAU/gsc-indexer/internal/sitemap"
	"github.com/JakeFAU/gsc-indexer/internal/storage"
	"github.com/JakeFAU/gsc-indexer/internal/storage/gcs"
	"github.com/JakeFAU/gsc-indexer/internal/storage/local"
	"github.com/JakeFAU/gsc-indexer/internal/storage/memory"
	"github.com/JakeFAU/gsc-indexer/internal/storage/postgres"
	redisstore "github.com/JakeFAU/gsc-indexer/internal/storage/redis"
	"github.com/JakeFAU/gsc-indexer/internal/submit"
	"github.com/JakeFAU/gsc-indexer/internal/transport"
)

// Build creates the application's dependencies from cfg. Progress bars go to
// out when it is non-nil. Call Close on the result when done.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger, out io.Writer) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := system.New()
	a := &App{}

	creds, err := auth.Resolve(auth.Options{
		ClientEmail:     cfg.Auth.ClientEmail,
		PrivateKey:      cfg.Auth.PrivateKey,
		CredentialsPath: cfg.Auth.CredentialsPath,
	})
	if err != nil {
		return nil, err
	}
	logger.Info("using service account",
		zap.String("email", creds.Config.Email),
		zap.String("source", creds.Source),
	)

	limiter := ratelimit.New(ratelimit.Config{
		RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
		Burst:             cfg.HTTP.Burst,
	})
	apiTransport := transport.New(nil,
		transport.WithMaxRetries(cfg.HTTP.MaxRetries),
		transport.WithLimiter(limiter),
		transport.WithLogger(logger),
	)
	httpClient := creds.HTTPClient(ctx, apiTransport)
	httpClient.Timeout = cfg.HTTP.Timeout

	client, err := gsc.New(ctx, gsc.Config{HTTPClient: httpClient}, logger)
	if err != nil {
		return nil, err
	}

	fetcher := sitemap.New(sitemap.Config{
		UserAgent: cfg.Sitemap.UserAgent,
		MaxDepth:  cfg.Sitemap.MaxDepth,
		Timeout:   cfg.HTTP.Timeout,
		Transport: transport.New(nil, transport.WithMaxRetries(cfg.HTTP.MaxRetries), transport.WithLogger(logger)),
	}, logger)

	backend, err := a.buildBackend(ctx, cfg.Cache, logger)
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}

	locker := a.buildLocker(cfg.Lock)

	var publisher indexer.Publisher
	if cfg.PubSub.Topic != "" {
		psClient, err := pubsub.NewClient(ctx, cfg.PubSub.ProjectID)
		if err != nil {
			_ = a.Close(ctx)
			return nil, fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pspublisher.New(psClient, cfg.PubSub.Topic)
		a.onClose(func(context.Context) error { return psClient.Close() })
		a.onClose(func(context.Context) error {
			pub.Close()
			return nil
		})
		publisher = pub
		logger.Info("publishing run events", zap.String("topic", cfg.PubSub.Topic))
	}

	built, err := New(Deps{
		Sites:     client,
		Sitemaps:  client,
		Inspector: client,
		Indexing:  client,
		Pages:     fetcher,
		Cache:     cache.New(backend, cfg.Cache.TTL, logger),
		Locker:    locker,
		Publisher: publisher,
		Clock:     clock,
		IDs:       uuid.New(),
		Tracker:   progress.New(clock, out),
		Logger:    logger,
	}, Settings{
		BatchSize: cfg.Batch.Size,
		Quota: submit.Config{
			RetryOnRateLimit: cfg.Quota.RPMRetry,
			MaxRetries:       cfg.Quota.MaxRetries,
			BaseInterval:     cfg.Quota.BaseInterval,
		},
		Topic:    cfg.PubSub.Topic,
		Textfile: cfg.Metrics.Textfile,
	})
	if err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	built.closers = a.closers
	return built, nil
}

func (a *App) buildBackend(ctx context.Context, cfg config.CacheConfig, logger *zap.Logger) (storage.Backend, error) {
	logger.Info("using cache backend", zap.String("backend", cfg.Backend))
	switch cfg.Backend {
	case config.BackendMemory:
		return memory.New(), nil
	case config.BackendGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.onClose(func(context.Context) error { return client.Close() })
		return gcs.New(client, cfg.GCS)
	case config.BackendRedis:
		client, err := redisstore.NewClient(cfg.Redis)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error { return client.Close() })
		return redisstore.New(client, cfg.Redis.Prefix)
	case config.BackendPostgres:
		store, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, err
		}
		a.onClose(func(context.Context) error {
			store.Close()
			return nil
		})
		return store, nil
	default:
		return local.New(cfg.Config)
	}
}

func (a *App) buildLocker(cfg config.LockConfig) indexer.Locker {
	if cfg.RedisAddr == "" {
		return lock.NewLocal()
	}
	client := goredis.NewClient(&goredis.Options{Addr: cfg.RedisAddr})
	a.onClose(func(context.Context) error { return client.Close() })
	return lock.NewRedis(client, cfg.TTL)
}
