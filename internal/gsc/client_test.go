package gsc

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gsc-indexer/internal/gsc/gsctest"
	"github.com/JakeFAU/gsc-indexer/internal/transport"
)

func newTestClient(t *testing.T, fake *gsctest.Server, httpClient *http.Client) *Client {
	t.Helper()
	if httpClient == nil {
		httpClient = fake.Client()
	}
	client, err := New(context.Background(), Config{
		HTTPClient:       httpClient,
		ConsoleEndpoint:  fake.Endpoint(),
		IndexingEndpoint: fake.Endpoint(),
		UserAgent:        "gsc-indexer-test",
	}, nil)
	require.NoError(t, err)
	return client
}

func TestNewRequiresHTTPClient(t *testing.T) {
	t.Parallel()

	_, err := New(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestListSitesAndSitemaps(t *testing.T) {
	t.Parallel()

	fake := gsctest.New()
	defer fake.Close()
	fake.Sites = []string{"https://example.com/", "sc-domain:example.org"}
	fake.Sitemaps["https://example.com/"] = []string{"https://example.com/sitemap.xml", "https://example.com/news.xml"}

	client := newTestClient(t, fake, nil)

	sites, err := client.ListSites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/", "sc-domain:example.org"}, sites)

	sitemaps, err := client.ListSitemaps(context.Background(), "https://example.com/")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/sitemap.xml", "https://example.com/news.xml"}, sitemaps)

	none, err := client.ListSitemaps(context.Background(), "sc-domain:example.org")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestInspectURL(t *testing.T) {
	t.Parallel()

	fake := gsctest.New()
	defer fake.Close()
	fake.Coverage["https://example.com/a"] = "Crawled - currently not indexed"
	fake.InspectCodes["https://example.com/private"] = http.StatusForbidden
	fake.InspectCodes["https://example.com/busy"] = http.StatusTooManyRequests

	client := newTestClient(t, fake, nil)
	ctx := context.Background()

	result, err := client.InspectURL(ctx, "https://example.com/", "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, "Crawled - currently not indexed", result.CoverageState)

	result, err = client.InspectURL(ctx, "https://example.com/", "https://example.com/private")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, result.StatusCode)
	assert.Empty(t, result.CoverageState)

	result, err = client.InspectURL(ctx, "https://example.com/", "https://example.com/busy")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, result.StatusCode)

	assert.Equal(t, []string{"https://example.com/a", "https://example.com/private", "https://example.com/busy"}, fake.Inspected())
}

func TestInspectURLTransportFailure(t *testing.T) {
	t.Parallel()

	fake := gsctest.New()
	fake.InspectCodes["https://example.com/a"] = http.StatusServiceUnavailable
	defer fake.Close()

	httpClient := &http.Client{Transport: transport.New(fake.Client().Transport, transport.WithMaxRetries(1))}
	client := newTestClient(t, fake, httpClient)

	_, err := client.InspectURL(context.Background(), "https://example.com/", "https://example.com/a")
	require.Error(t, err)
	var serverErr *transport.ServerError
	assert.ErrorAs(t, err, &serverErr)
	assert.Len(t, fake.Inspected(), 2)
}

func TestMetadataAndPublish(t *testing.T) {
	t.Parallel()

	fake := gsctest.New()
	defer fake.Close()
	fake.Metadata["https://example.com/old"] = []int{http.StatusOK}

	client := newTestClient(t, fake, nil)
	ctx := context.Background()

	code, err := client.GetMetadata(ctx, "https://example.com/new")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code)

	code, err = client.GetMetadata(ctx, "https://example.com/old")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)

	code, err = client.Publish(ctx, "https://example.com/new")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"https://example.com/new"}, fake.Published())

	fake.PublishCode = http.StatusTooManyRequests
	code, err = client.Publish(ctx, "https://example.com/other")
	require.NoError(t, err)
	assert.Equal(t, http.StatusTooManyRequests, code)
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	code, err := statusOf(assert.AnError)
	assert.Zero(t, code)
	assert.ErrorIs(t, err, assert.AnError)
}
