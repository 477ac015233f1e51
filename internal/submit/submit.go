// Package submit requests indexing for URLs through the Indexing API while
// respecting its quota: metadata checks wait on a linear ladder when rate
// limited, publish calls treat a rate limit as fatal.
package submit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/clock/system"
	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/metrics"
)

// Quota ladder defaults.
const (
	DefaultMaxRetries   = 3
	DefaultBaseInterval = 60 * time.Second
)

// Sleeper suspends for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Config controls quota handling.
type Config struct {
	// RetryOnRateLimit enables the metadata quota ladder. When false a 429 is fatal at once.
	RetryOnRateLimit bool
	MaxRetries       int
	BaseInterval     time.Duration
	// Topic receives an indexing.requested event per successful publish.
	Topic string
	RunID string
}

// Submitter drives metadata checks and publish calls for one run.
type Submitter struct {
	api       indexer.IndexingAPI
	cfg       Config
	sleep     Sleeper
	publisher indexer.Publisher
	clock     indexer.Clock
	logger    *zap.Logger
	onOutcome func(pageURL string, outcome indexer.Outcome)
}

// Option customizes a Submitter.
type Option func(*Submitter)

// WithSleeper replaces the context-aware timer used on the quota ladder.
func WithSleeper(s Sleeper) Option {
	return func(sub *Submitter) {
		if s != nil {
			sub.sleep = s
		}
	}
}

// WithPublisher emits an event after every successful publish.
func WithPublisher(p indexer.Publisher) Option {
	return func(sub *Submitter) {
		sub.publisher = p
	}
}

// WithClock sets the clock stamped on events.
func WithClock(c indexer.Clock) Option {
	return func(sub *Submitter) {
		if c != nil {
			sub.clock = c
		}
	}
}

// WithOutcomeHook is called after every processed URL.
func WithOutcomeHook(fn func(pageURL string, outcome indexer.Outcome)) Option {
	return func(sub *Submitter) {
		sub.onOutcome = fn
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(sub *Submitter) {
		if logger != nil {
			sub.logger = logger
		}
	}
}

// New creates a Submitter. Zero-valued ladder settings take the defaults.
func New(api indexer.IndexingAPI, cfg Config, opts ...Option) *Submitter {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.BaseInterval <= 0 {
		cfg.BaseInterval = DefaultBaseInterval
	}
	s := &Submitter{
		api:    api,
		cfg:    cfg,
		sleep:  SleepContext,
		clock:  system.New(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// QuotaWait is the wait before retrying with remaining retries left:
// T, 2T, 3T... for remaining = max, max-1, max-2...
func QuotaWait(maxRetries, remaining int, base time.Duration) time.Duration {
	return time.Duration(maxRetries-remaining+1) * base
}

// CheckMetadata returns the status code of the URL's notification metadata,
// walking the quota ladder on 429. It returns indexer.ErrQuotaExceeded once
// the ladder is exhausted or disabled.
func (s *Submitter) CheckMetadata(ctx context.Context, pageURL string) (int, error) {
	remaining := s.cfg.MaxRetries
	for {
		code, err := s.api.GetMetadata(ctx, pageURL)
		if err != nil {
			return 0, fmt.Errorf("metadata %s: %w", pageURL, err)
		}
		if code != http.StatusTooManyRequests {
			return code, nil
		}
		if !s.cfg.RetryOnRateLimit || remaining <= 0 {
			return code, fmt.Errorf("%w: metadata check for %s", indexer.ErrQuotaExceeded, pageURL)
		}

		wait := QuotaWait(s.cfg.MaxRetries, remaining, s.cfg.BaseInterval)
		s.logger.Warn("rate limited, waiting before retry",
			zap.String("url", pageURL),
			zap.Duration("wait", wait),
			zap.Int("retries_left", remaining),
		)
		metrics.ObserveQuotaWait(wait)
		if err := s.sleep(ctx, wait); err != nil {
			return 0, fmt.Errorf("quota wait: %w", err)
		}
		remaining--
	}
}

// Submit publishes a URL_UPDATED notification and returns the status code.
// A 429 is fatal.
func (s *Submitter) Submit(ctx context.Context, pageURL string) (int, error) {
	code, err := s.api.Publish(ctx, pageURL)
	if err != nil {
		return 0, fmt.Errorf("publish %s: %w", pageURL, err)
	}
	if code == http.StatusTooManyRequests {
		return code, fmt.Errorf("%w: publish for %s", indexer.ErrQuotaExceeded, pageURL)
	}
	return code, nil
}

// Process checks metadata and publishes when the URL was never submitted.
// Only quota exhaustion is returned as an error; every other failure is
// logged and reported as indexer.OutcomeFailed.
func (s *Submitter) Process(ctx context.Context, pageURL string) (indexer.Outcome, error) {
	outcome, err := s.process(ctx, pageURL)
	metrics.ObserveSubmission(string(outcome))
	if s.onOutcome != nil {
		s.onOutcome(pageURL, outcome)
	}
	return outcome, err
}

func (s *Submitter) process(ctx context.Context, pageURL string) (indexer.Outcome, error) {
	code, err := s.CheckMetadata(ctx, pageURL)
	if err != nil {
		if errors.Is(err, indexer.ErrQuotaExceeded) || ctx.Err() != nil {
			return indexer.OutcomeFailed, err
		}
		s.logger.Error("metadata check failed", zap.String("url", pageURL), zap.Error(err))
		return indexer.OutcomeFailed, nil
	}

	switch {
	case code == http.StatusNotFound:
	case code < http.StatusBadRequest:
		s.logger.Info("indexing already requested", zap.String("url", pageURL), zap.Int("code", code))
		return indexer.OutcomeAlreadyRequested, nil
	default:
		s.logger.Error("unexpected metadata status", zap.String("url", pageURL), zap.Int("code", code))
		return indexer.OutcomeFailed, nil
	}

	code, err = s.Submit(ctx, pageURL)
	if err != nil {
		if errors.Is(err, indexer.ErrQuotaExceeded) || ctx.Err() != nil {
			return indexer.OutcomeFailed, err
		}
		s.logger.Error("publish failed", zap.String("url", pageURL), zap.Error(err))
		return indexer.OutcomeFailed, nil
	}
	if code >= http.StatusMultipleChoices {
		s.logger.Error("unexpected publish status", zap.String("url", pageURL), zap.Int("code", code))
		return indexer.OutcomeFailed, nil
	}

	s.logger.Info("indexing requested", zap.String("url", pageURL))
	s.emit(ctx, pageURL)
	return indexer.OutcomeSubmitted, nil
}

// ProcessAll submits URLs one by one and stops at the first fatal error,
// returning the outcomes gathered so far.
func (s *Submitter) ProcessAll(ctx context.Context, urls []string) (map[string]indexer.Outcome, error) {
	outcomes := make(map[string]indexer.Outcome, len(urls))
	for _, pageURL := range urls {
		outcome, err := s.Process(ctx, pageURL)
		outcomes[pageURL] = outcome
		if err != nil {
			return outcomes, err
		}
	}
	return outcomes, nil
}

func (s *Submitter) emit(ctx context.Context, pageURL string) {
	if s.publisher == nil {
		return
	}
	event := indexer.Event{
		Type:       indexer.EventIndexingRequested,
		RunID:      s.cfg.RunID,
		URL:        pageURL,
		OccurredAt: s.clock.Now(),
	}
	if _, err := s.publisher.Publish(ctx, s.cfg.Topic, event); err != nil {
		s.logger.Warn("publish indexing event failed", zap.String("url", pageURL), zap.Error(err))
	}
}

// SleepContext waits for d unless ctx finishes first.
func SleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("sleep interrupted: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
