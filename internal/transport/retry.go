// Package transport provides the retrying http.RoundTripper that every console API call goes through.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/metrics"
)

// DefaultMaxRetries is the number of resubmissions after the first attempt.
const DefaultMaxRetries = 5

const maxErrorBody = 4 << 10

// ServerError is returned when the last permitted attempt still answered with a 5xx status.
type ServerError struct {
	StatusCode int
	Body       string
}

func (e *ServerError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("server error %d", e.StatusCode)
	}
	return fmt.Sprintf("server error %d: %s", e.StatusCode, e.Body)
}

// Waiter paces outbound requests per host.
type Waiter interface {
	Wait(ctx context.Context, host string) error
}

// Option customizes a Transport.
type Option func(*Transport)

// WithMaxRetries overrides the retry budget. Negative values are treated as zero.
func WithMaxRetries(n int) Option {
	return func(t *Transport) {
		if n < 0 {
			n = 0
		}
		t.maxRetries = n
	}
}

// WithLimiter waits on w before every attempt.
func WithLimiter(w Waiter) Option {
	return func(t *Transport) {
		t.limiter = w
	}
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Transport resubmits a request immediately when it fails at the transport
// level or the server answers with a status >= 500. It never looks at 4xx
// codes; quota handling belongs to the caller.
type Transport struct {
	base       http.RoundTripper
	maxRetries int
	limiter    Waiter
	logger     *zap.Logger
}

// New wraps base (http.DefaultTransport when nil).
func New(base http.RoundTripper, opts ...Option) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	t := &Transport{
		base:       base,
		maxRetries: DefaultMaxRetries,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RoundTrip implements http.RoundTripper.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil || req.URL == nil {
		return nil, errors.New("retry transport received nil request")
	}
	ctx := req.Context()
	host := req.URL.Hostname()

	getBody, err := bodyReplayer(req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt <= t.maxRetries; attempt++ {
		if attempt > 0 {
			metrics.ObserveAPIRetry(host)
			t.logger.Debug("retrying console request",
				zap.String("host", host),
				zap.String("path", req.URL.Path),
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}
		if t.limiter != nil {
			if err := t.limiter.Wait(ctx, host); err != nil {
				return nil, fmt.Errorf("retry transport wait: %w", err)
			}
		}

		attemptReq, err := cloneRequest(req, getBody)
		if err != nil {
			return nil, err
		}
		resp, err := t.base.RoundTrip(attemptReq)
		if err != nil {
			metrics.ObserveAPIRequest(host, 0)
			if ctx.Err() != nil {
				return nil, fmt.Errorf("retry transport roundtrip: %w", err)
			}
			lastErr = fmt.Errorf("retry transport roundtrip: %w", err)
			continue
		}
		metrics.ObserveAPIRequest(host, resp.StatusCode)
		if resp.StatusCode < http.StatusInternalServerError {
			return resp, nil
		}
		lastErr = &ServerError{StatusCode: resp.StatusCode, Body: drain(resp)}
	}

	t.logger.Warn("console request failed after retries",
		zap.String("host", host),
		zap.String("path", req.URL.Path),
		zap.Int("attempts", t.maxRetries+1),
		zap.Error(lastErr),
	)
	return nil, lastErr
}

// bodyReplayer returns a function producing a fresh copy of the request body
// for each attempt, or nil when the request carries no body.
func bodyReplayer(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	closeErr := req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("close request body: %w", closeErr)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

func cloneRequest(req *http.Request, getBody func() (io.ReadCloser, error)) (*http.Request, error) {
	clone := req.Clone(req.Context())
	if getBody == nil {
		return clone, nil
	}
	body, err := getBody()
	if err != nil {
		return nil, fmt.Errorf("replay request body: %w", err)
	}
	clone.Body = body
	clone.GetBody = getBody
	return clone, nil
}

func drain(resp *http.Response) string {
	if resp.Body == nil {
		return ""
	}
	defer resp.Body.Close() //nolint:errcheck // body already consumed
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(bytes.TrimSpace(data))
}
