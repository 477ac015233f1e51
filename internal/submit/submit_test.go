package submit

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/publisher/memory"
)

type fakeIndexingAPI struct {
	metadata     []int
	metadataErr  error
	publish      int
	publishErr   error
	metaCalls    int
	publishCalls []string
}

func (f *fakeIndexingAPI) GetMetadata(context.Context, string) (int, error) {
	if f.metadataErr != nil {
		return 0, f.metadataErr
	}
	idx := f.metaCalls
	if idx >= len(f.metadata) {
		idx = len(f.metadata) - 1
	}
	f.metaCalls++
	return f.metadata[idx], nil
}

func (f *fakeIndexingAPI) Publish(_ context.Context, pageURL string) (int, error) {
	f.publishCalls = append(f.publishCalls, pageURL)
	return f.publish, f.publishErr
}

type recordingSleeper struct {
	waits []time.Duration
}

func (r *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	r.waits = append(r.waits, d)
	return nil
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

func TestQuotaWait(t *testing.T) {
	t.Parallel()

	base := 60 * time.Second
	assert.Equal(t, base, QuotaWait(3, 3, base))
	assert.Equal(t, 2*base, QuotaWait(3, 2, base))
	assert.Equal(t, 3*base, QuotaWait(3, 1, base))
}

func TestCheckMetadataLadderWaitsLinearly(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{429, 429, 429, 404}}
	sleeper := &recordingSleeper{}
	sub := New(api, Config{RetryOnRateLimit: true, MaxRetries: 3, BaseInterval: time.Second}, WithSleeper(sleeper.sleep))

	code, err := sub.CheckMetadata(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 3 * time.Second}, sleeper.waits)
	assert.Equal(t, 4, api.metaCalls)
}

func TestCheckMetadataLadderExhausted(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{429}}
	sleeper := &recordingSleeper{}
	sub := New(api, Config{RetryOnRateLimit: true, MaxRetries: 3, BaseInterval: time.Minute}, WithSleeper(sleeper.sleep))

	_, err := sub.CheckMetadata(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, indexer.ErrQuotaExceeded)
	assert.Len(t, sleeper.waits, 3)
	assert.Equal(t, 4, api.metaCalls)
}

func TestCheckMetadataRateLimitFatalWithoutToggle(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{429}}
	sleeper := &recordingSleeper{}
	sub := New(api, Config{}, WithSleeper(sleeper.sleep))

	_, err := sub.CheckMetadata(context.Background(), "https://example.com/a")
	require.ErrorIs(t, err, indexer.ErrQuotaExceeded)
	assert.Empty(t, sleeper.waits)
	assert.Equal(t, 1, api.metaCalls)
}

func TestCheckMetadataSleepCancelled(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	api := &fakeIndexingAPI{metadata: []int{429}}
	sub := New(api, Config{RetryOnRateLimit: true, BaseInterval: time.Hour})

	_, err := sub.CheckMetadata(ctx, "https://example.com/a")
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, indexer.ErrQuotaExceeded)
}

func TestProcessOutcomes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		api         *fakeIndexingAPI
		expected    indexer.Outcome
		publishes   int
		expectedErr error
	}{
		{
			name:      "never submitted is published",
			api:       &fakeIndexingAPI{metadata: []int{404}, publish: 200},
			expected:  indexer.OutcomeSubmitted,
			publishes: 1,
		},
		{
			name:      "previously submitted is skipped",
			api:       &fakeIndexingAPI{metadata: []int{200}},
			expected:  indexer.OutcomeAlreadyRequested,
			publishes: 0,
		},
		{
			name:      "forbidden metadata is a non-fatal failure",
			api:       &fakeIndexingAPI{metadata: []int{403}},
			expected:  indexer.OutcomeFailed,
			publishes: 0,
		},
		{
			name:      "metadata transport failure is non-fatal",
			api:       &fakeIndexingAPI{metadataErr: errors.New("server error 503")},
			expected:  indexer.OutcomeFailed,
			publishes: 0,
		},
		{
			name:      "publish bad request is non-fatal",
			api:       &fakeIndexingAPI{metadata: []int{404}, publish: 400},
			expected:  indexer.OutcomeFailed,
			publishes: 1,
		},
		{
			name:      "publish transport failure is non-fatal",
			api:       &fakeIndexingAPI{metadata: []int{404}, publishErr: errors.New("connection reset")},
			expected:  indexer.OutcomeFailed,
			publishes: 1,
		},
		{
			name:        "publish rate limit is fatal",
			api:         &fakeIndexingAPI{metadata: []int{404}, publish: 429},
			expected:    indexer.OutcomeFailed,
			publishes:   1,
			expectedErr: indexer.ErrQuotaExceeded,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			sub := New(tc.api, Config{RetryOnRateLimit: true}, WithSleeper((&recordingSleeper{}).sleep))
			outcome, err := sub.Process(context.Background(), "https://example.com/a")
			if tc.expectedErr != nil {
				require.ErrorIs(t, err, tc.expectedErr)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tc.expected, outcome)
			assert.Len(t, tc.api.publishCalls, tc.publishes)
		})
	}
}

func TestProcessPublishesEvent(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	at := time.Date(2024, 6, 1, 8, 0, 0, 0, time.UTC)
	api := &fakeIndexingAPI{metadata: []int{404}, publish: 200}
	sub := New(api, Config{Topic: "gsc-events", RunID: "run-42"},
		WithPublisher(pub), WithClock(fixedClock{t: at}))

	outcome, err := sub.Process(context.Background(), "https://example.com/new")
	require.NoError(t, err)
	assert.Equal(t, indexer.OutcomeSubmitted, outcome)

	events := pub.Events(indexer.EventIndexingRequested)
	require.Len(t, events, 1)
	assert.Equal(t, "https://example.com/new", events[0].URL)
	assert.Equal(t, "run-42", events[0].RunID)
	assert.Equal(t, at, events[0].OccurredAt)
	assert.Equal(t, "gsc-events", pub.Messages()[0].Topic)
}

func TestProcessIgnoresEventFailure(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("topic not found"))
	api := &fakeIndexingAPI{metadata: []int{404}, publish: 200}

	outcome, err := New(api, Config{}, WithPublisher(pub)).Process(context.Background(), "https://example.com/x")
	require.NoError(t, err)
	assert.Equal(t, indexer.OutcomeSubmitted, outcome)
}

func TestProcessAllStopsAtFatal(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{404}, publish: 429}
	sub := New(api, Config{})

	outcomes, err := sub.ProcessAll(context.Background(), []string{"https://example.com/a", "https://example.com/b"})
	require.ErrorIs(t, err, indexer.ErrQuotaExceeded)
	assert.Equal(t, map[string]indexer.Outcome{"https://example.com/a": indexer.OutcomeFailed}, outcomes)
	assert.Equal(t, []string{"https://example.com/a"}, api.publishCalls)
}

func TestProcessAllIdempotentSubmission(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{200}}
	outcomes, err := New(api, Config{}).ProcessAll(context.Background(), []string{"https://example.com/a", "https://example.com/b"})
	require.NoError(t, err)
	assert.Empty(t, api.publishCalls)
	assert.Equal(t, indexer.OutcomeAlreadyRequested, outcomes["https://example.com/b"])
}

func TestProcessAllOutcomeHook(t *testing.T) {
	t.Parallel()

	api := &fakeIndexingAPI{metadata: []int{404}, publish: http.StatusOK}
	var seen []string
	sub := New(api, Config{}, WithOutcomeHook(func(pageURL string, outcome indexer.Outcome) {
		seen = append(seen, pageURL+"="+string(outcome))
	}))

	_, err := sub.ProcessAll(context.Background(), []string{"https://example.com/a", "https://example.com/b"})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://example.com/a=submitted", "https://example.com/b=submitted"}, seen)
}

func TestSleepContext(t *testing.T) {
	t.Parallel()

	require.NoError(t, SleepContext(context.Background(), 0))
	require.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}
