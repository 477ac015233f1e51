package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/config"
	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/progress"
)

type fakeReconciler struct {
	input  string
	urls   []string
	report indexer.RunReport
	err    error
	closed bool
}

func (f *fakeReconciler) Run(_ context.Context, input string, urls []string) (indexer.RunReport, error) {
	f.input = input
	f.urls = urls
	return f.report, f.err
}

func (f *fakeReconciler) Tracker() *progress.Tracker {
	return progress.New(fixedClock{}, nil)
}

func (f *fakeReconciler) Close(context.Context) error {
	f.closed = true
	return nil
}

type fixedClock struct{}

func (fixedClock) Now() time.Time { return time.Unix(0, 0) }

func withFakeApp(t *testing.T, fake *fakeReconciler) *config.Config {
	t.Helper()
	var captured config.Config
	previous := buildApp
	buildApp = func(_ context.Context, cfg config.Config, _ *zap.Logger, _ io.Writer) (reconciler, error) {
		captured = cfg
		return fake, nil
	}
	t.Cleanup(func() { buildApp = previous })
	return &captured
}

func execute(args ...string) (string, error) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestRootCommandRunsReconcile(t *testing.T) {
	fake := &fakeReconciler{report: indexer.RunReport{
		PerStatus: map[indexer.Status][]string{
			indexer.StatusDiscoveredCurrentlyNotIndexed: {"https://example.com/a"},
		},
		Outcomes: map[string]indexer.Outcome{"https://example.com/a": indexer.OutcomeSubmitted},
	}}
	cfg := withFakeApp(t, fake)

	out, err := execute("example.com", "-u", "/a,/b", "--batch-size", "10", "--rpm-retry", "-c", "bot@example.iam.gserviceaccount.com", "-k", "key")
	require.NoError(t, err)

	assert.Equal(t, "example.com", fake.input)
	assert.Equal(t, []string{"/a", "/b"}, fake.urls)
	assert.True(t, fake.closed)
	assert.Equal(t, 10, cfg.Batch.Size)
	assert.True(t, cfg.Quota.RPMRetry)
	assert.Equal(t, "bot@example.iam.gserviceaccount.com", cfg.Auth.ClientEmail)
	assert.Contains(t, out, "Discovered - currently not indexed: 1 pages")
	assert.Contains(t, out, "Requested indexing for 1 of 1 pages")
}

func TestRootCommandReturnsFatalErrors(t *testing.T) {
	fake := &fakeReconciler{err: indexer.ErrNoSitemaps}
	withFakeApp(t, fake)

	_, err := execute("example.com")
	require.ErrorIs(t, err, indexer.ErrNoSitemaps)
	assert.True(t, fake.closed)
}

func TestRootCommandRejectsExtraArgs(t *testing.T) {
	withFakeApp(t, &fakeReconciler{})

	_, err := execute("example.com", "example.org")
	assert.Error(t, err)
}

func TestRootCommandInvalidConfig(t *testing.T) {
	withFakeApp(t, &fakeReconciler{})

	_, err := execute("example.com", "--batch-size", "0")
	assert.ErrorContains(t, err, "batch.size")
}

func TestDescribe(t *testing.T) {
	t.Parallel()

	assert.Contains(t, describe(indexer.ErrQuotaExceeded), "--rpm-retry")
	assert.Contains(t, describe(indexer.ErrMissingCredentials), "service_account.json")
	assert.Equal(t, "boom", describe(errors.New("boom")))
}
