package indexer

import (
	"context"
	"time"
)

// SiteLister lists the console properties the credential can access.
type SiteLister interface {
	ListSites(ctx context.Context) ([]string, error)
}

// SitemapLister lists the sitemaps registered for a property.
type SitemapLister interface {
	ListSitemaps(ctx context.Context, siteURL string) ([]string, error)
}

// Inspector checks the index status of a single URL.
type Inspector interface {
	InspectURL(ctx context.Context, siteURL, pageURL string) (InspectResult, error)
}

// IndexingAPI issues publish metadata and publish calls and reports raw HTTP status codes.
type IndexingAPI interface {
	GetMetadata(ctx context.Context, pageURL string) (int, error)
	Publish(ctx context.Context, pageURL string) (int, error)
}

// PageSource expands sitemap locations into page URLs.
type PageSource interface {
	Pages(ctx context.Context, sitemaps []string) ([]string, error)
}

// Publisher pushes run events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Locker guards a site against concurrent runs.
type Locker interface {
	Lock(ctx context.Context, key string) (release func(context.Context) error, err error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
