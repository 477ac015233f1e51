// Package sitemap expands sitemap and sitemap index documents into page URLs.
package sitemap

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

// Defaults for the collector.
const (
	DefaultMaxDepth  = 3
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "gsc-indexer (+https://github.com/JakeFAU/gsc-indexer)"
)

// Config controls sitemap fetching.
type Config struct {
	UserAgent string
	// MaxDepth bounds how many sitemap index levels are followed.
	MaxDepth  int
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Fetcher walks sitemaps with a synchronous colly collector.
type Fetcher struct {
	cfg    Config
	logger *zap.Logger
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Fetcher{cfg: cfg, logger: logger}
}

// newCollector returns a fresh collector so visited URLs never leak between
// calls. Every request it sends carries ctx.
func (f *Fetcher) newCollector(ctx context.Context) *colly.Collector {
	collector := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.Async(false),
		colly.MaxDepth(f.cfg.MaxDepth),
		colly.UserAgent(f.cfg.UserAgent),
	)
	collector.SetRequestTimeout(f.cfg.Timeout)
	if f.cfg.Transport != nil {
		collector.WithTransport(f.cfg.Transport)
	}
	return collector
}

// Pages returns the unique page URLs listed by the sitemaps, in document
// order. Sitemaps that fail to load are logged and skipped.
func (f *Fetcher) Pages(ctx context.Context, sitemaps []string) ([]string, error) {
	collector := f.newCollector(ctx)

	var pages []string
	collector.OnXML("//urlset/url/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" {
			return
		}
		pages = append(pages, loc)
	})
	collector.OnXML("//sitemapindex/sitemap/loc", func(e *colly.XMLElement) {
		loc := strings.TrimSpace(e.Text)
		if loc == "" {
			return
		}
		if err := e.Request.Visit(loc); err != nil {
			f.logger.Debug("skipping nested sitemap", zap.String("sitemap", loc), zap.Error(err))
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		f.logger.Warn("sitemap fetch failed",
			zap.String("sitemap", r.Request.URL.String()),
			zap.Int("status", r.StatusCode),
			zap.Error(err),
		)
	})

	for _, location := range sitemaps {
		if ctx.Err() != nil {
			break
		}
		if err := collector.Visit(location); err != nil {
			f.logger.Warn("sitemap skipped", zap.String("sitemap", location), zap.Error(err))
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("sitemap fetch canceled: %w", err)
	}
	return lo.Uniq(pages), nil
}
