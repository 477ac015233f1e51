// Package gsc talks to the Search Console and Indexing APIs. HTTP error
// responses come back as status codes so callers can classify them; only
// transport failures are returned as errors.
package gsc

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"go.uber.org/zap"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/indexing/v3"
	"google.golang.org/api/option"
	"google.golang.org/api/searchconsole/v1"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
)

// NotificationType is the only notification the indexer sends.
const NotificationType = "URL_UPDATED"

// Config controls how the API services are built.
type Config struct {
	// HTTPClient carries authentication and retries. Required.
	HTTPClient *http.Client
	// ConsoleEndpoint and IndexingEndpoint override the API base URLs.
	ConsoleEndpoint  string
	IndexingEndpoint string
	UserAgent        string
}

// Client implements the indexer's site, sitemap, inspection and indexing interfaces.
type Client struct {
	console  *searchconsole.Service
	indexing *indexing.Service
	logger   *zap.Logger
}

// New builds both API services over cfg.HTTPClient.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.HTTPClient == nil {
		return nil, fmt.Errorf("http client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := []option.ClientOption{option.WithHTTPClient(cfg.HTTPClient)}
	if cfg.UserAgent != "" {
		base = append(base, option.WithUserAgent(cfg.UserAgent))
	}

	consoleOpts := base
	if cfg.ConsoleEndpoint != "" {
		consoleOpts = append(append([]option.ClientOption{}, base...), option.WithEndpoint(cfg.ConsoleEndpoint))
	}
	console, err := searchconsole.NewService(ctx, consoleOpts...)
	if err != nil {
		return nil, fmt.Errorf("create search console service: %w", err)
	}

	indexingOpts := base
	if cfg.IndexingEndpoint != "" {
		indexingOpts = append(append([]option.ClientOption{}, base...), option.WithEndpoint(cfg.IndexingEndpoint))
	}
	idx, err := indexing.NewService(ctx, indexingOpts...)
	if err != nil {
		return nil, fmt.Errorf("create indexing service: %w", err)
	}

	return &Client{console: console, indexing: idx, logger: logger}, nil
}

// ListSites returns the property identifiers the credential can access.
func (c *Client) ListSites(ctx context.Context) ([]string, error) {
	resp, err := c.console.Sites.List().Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	sites := make([]string, 0, len(resp.SiteEntry))
	for _, entry := range resp.SiteEntry {
		if entry == nil || entry.SiteUrl == "" {
			continue
		}
		sites = append(sites, entry.SiteUrl)
	}
	return sites, nil
}

// ListSitemaps returns the sitemap locations submitted for a property.
func (c *Client) ListSitemaps(ctx context.Context, siteURL string) ([]string, error) {
	resp, err := c.console.Sitemaps.List(siteURL).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("list sitemaps for %s: %w", siteURL, err)
	}
	paths := make([]string, 0, len(resp.Sitemap))
	for _, sitemap := range resp.Sitemap {
		if sitemap == nil || sitemap.Path == "" {
			continue
		}
		paths = append(paths, sitemap.Path)
	}
	return paths, nil
}

// InspectURL asks for the index status of pageURL within siteURL.
func (c *Client) InspectURL(ctx context.Context, siteURL, pageURL string) (indexer.InspectResult, error) {
	req := &searchconsole.InspectUrlIndexRequest{
		InspectionUrl: pageURL,
		SiteUrl:       siteURL,
	}
	resp, err := c.console.UrlInspection.Index.Inspect(req).Context(ctx).Do()
	if err != nil {
		code, transportErr := statusOf(err)
		if transportErr != nil {
			return indexer.InspectResult{}, fmt.Errorf("inspect %s: %w", pageURL, transportErr)
		}
		c.logger.Debug("inspection rejected", zap.String("url", pageURL), zap.Int("code", code), zap.Error(err))
		return indexer.InspectResult{StatusCode: code}, nil
	}

	result := indexer.InspectResult{StatusCode: resp.HTTPStatusCode}
	if resp.InspectionResult != nil && resp.InspectionResult.IndexStatusResult != nil {
		result.CoverageState = resp.InspectionResult.IndexStatusResult.CoverageState
	}
	return result, nil
}

// GetMetadata returns the status code of the URL's notification metadata.
// 404 means no notification was ever sent for the URL.
func (c *Client) GetMetadata(ctx context.Context, pageURL string) (int, error) {
	resp, err := c.indexing.UrlNotifications.GetMetadata().Url(pageURL).Context(ctx).Do()
	if err != nil {
		code, transportErr := statusOf(err)
		if transportErr != nil {
			return 0, fmt.Errorf("get metadata %s: %w", pageURL, transportErr)
		}
		return code, nil
	}
	return resp.HTTPStatusCode, nil
}

// Publish sends a URL_UPDATED notification for pageURL.
func (c *Client) Publish(ctx context.Context, pageURL string) (int, error) {
	notification := &indexing.UrlNotification{Url: pageURL, Type: NotificationType}
	resp, err := c.indexing.UrlNotifications.Publish(notification).Context(ctx).Do()
	if err != nil {
		code, transportErr := statusOf(err)
		if transportErr != nil {
			return 0, fmt.Errorf("publish %s: %w", pageURL, transportErr)
		}
		c.logger.Debug("publish rejected", zap.String("url", pageURL), zap.Int("code", code), zap.Error(err))
		return code, nil
	}
	return resp.HTTPStatusCode, nil
}

// statusOf splits an API error into its HTTP status, or returns the error
// when the call never produced a response.
func statusOf(err error) (int, error) {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code, nil
	}
	return 0, err
}
