package progress

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func TestTrackerLifecycle(t *testing.T) {
	t.Parallel()

	clock := fixedClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}
	tracker := New(clock, nil)
	assert.Equal(t, StageIdle, tracker.Snapshot().Stage)

	tracker.Begin("run-1", "https://example.com/")
	tracker.StartChecks(3, 1)

	var wg sync.WaitGroup
	for i := range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tracker.URLDone(i == 0)
		}()
	}
	wg.Wait()
	tracker.BatchDone(0, 1)
	tracker.StartSubmitting()
	tracker.Submitted()
	tracker.Submitted()
	tracker.Finish(nil)

	snap := tracker.Snapshot()
	assert.Equal(t, "run-1", snap.RunID)
	assert.Equal(t, StageDone, snap.Stage)
	assert.Equal(t, 3, snap.Total)
	assert.Equal(t, 3, snap.Checked)
	assert.Equal(t, 1, snap.CacheHits)
	assert.Equal(t, 1, snap.Batches)
	assert.Equal(t, snap.TotalBatches, snap.Batches)
	assert.Equal(t, 2, snap.Submitted)
	assert.Equal(t, clock.now, snap.StartedAt)
	assert.Empty(t, snap.Error)
}

func TestTrackerFailure(t *testing.T) {
	t.Parallel()

	tracker := New(fixedClock{now: time.Now()}, nil)
	tracker.Begin("run-2", "sc-domain:example.com")
	tracker.Finish(errors.New("no sitemaps found"))

	snap := tracker.Snapshot()
	assert.Equal(t, StageFailed, snap.Stage)
	assert.Equal(t, "no sitemaps found", snap.Error)
}

func TestTrackerBatchDoneCountsFinishedBatches(t *testing.T) {
	t.Parallel()

	tracker := New(fixedClock{now: time.Now()}, nil)
	tracker.Begin("run-4", "https://example.com/")
	tracker.StartChecks(5, 3)

	tracker.BatchDone(0, 3)
	assert.Equal(t, 1, tracker.Snapshot().Batches)
	tracker.BatchDone(1, 3)
	tracker.BatchDone(2, 3)

	snap := tracker.Snapshot()
	assert.Equal(t, 3, snap.Batches)
	assert.Equal(t, 3, snap.TotalBatches)
}

func TestTrackerRendersBar(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	tracker := New(fixedClock{now: time.Now()}, &out)
	tracker.Begin("run-3", "https://example.com/")
	tracker.StartChecks(2, 1)
	tracker.URLDone(false)
	tracker.URLDone(false)
	tracker.Finish(nil)

	require.NotZero(t, out.Len())
	assert.Contains(t, out.String(), "https://example.com/")
}
