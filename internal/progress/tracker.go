// Package progress tracks the state of the current run for the console bar and the status endpoint.
package progress

import (
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
)

// Stage names the phase a run is in.
type Stage string

// Run stages, in order.
const (
	StageIdle       Stage = "idle"
	StageResolving  Stage = "resolving"
	StageChecking   Stage = "checking"
	StageSubmitting Stage = "submitting"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// Snapshot is a point-in-time copy of run progress.
type Snapshot struct {
	RunID        string    `json:"run_id,omitempty"`
	SiteURL      string    `json:"site_url,omitempty"`
	Stage        Stage     `json:"stage"`
	Total        int       `json:"total"`
	Checked      int       `json:"checked"`
	CacheHits    int       `json:"cache_hits"`
	Batches      int       `json:"batches"`
	TotalBatches int       `json:"total_batches"`
	Submitted    int       `json:"submitted"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	UpdatedAt    time.Time `json:"updated_at,omitzero"`
	Error        string    `json:"error,omitempty"`
}

// Tracker is safe for concurrent use by the per-URL tasks.
type Tracker struct {
	clock indexer.Clock
	out   io.Writer

	mu   sync.Mutex
	snap Snapshot
	bars *mpb.Progress
	bar  *mpb.Bar
}

// New creates an idle tracker. A nil out disables the console bar.
func New(clock indexer.Clock, out io.Writer) *Tracker {
	return &Tracker{clock: clock, out: out, snap: Snapshot{Stage: StageIdle}}
}

// Begin resets the tracker for a new run.
func (t *Tracker) Begin(runID, siteURL string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	t.snap = Snapshot{
		RunID:     runID,
		SiteURL:   siteURL,
		Stage:     StageResolving,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// StartChecks records the inspection workload and opens the console bar.
func (t *Tracker) StartChecks(total, batches int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Stage = StageChecking
	t.snap.Total = total
	t.snap.TotalBatches = batches
	t.snap.UpdatedAt = t.clock.Now()

	if t.out == nil || total == 0 {
		return
	}
	t.bars = mpb.New(mpb.WithOutput(t.out), mpb.WithWidth(40), mpb.WithAutoRefresh())
	t.bar = t.bars.AddBar(int64(total),
		mpb.BarOptional(mpb.BarRemoveOnComplete(), false),
		mpb.PrependDecorators(
			decor.Name(t.snap.SiteURL, decor.WCSyncWidth),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("[%d / %d]", decor.WCSyncWidth),
			decor.Percentage(decor.WCSyncSpace),
			decor.OnComplete(
				decor.EwmaETA(decor.ET_STYLE_GO, 30, decor.WCSyncSpace), "done",
			),
		),
	)
}

// URLDone counts one URL whose status is settled for this run.
func (t *Tracker) URLDone(fromCache bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Checked++
	if fromCache {
		t.snap.CacheHits++
	}
	t.snap.UpdatedAt = t.clock.Now()
	if t.bar != nil {
		t.bar.Increment()
	}
}

// BatchDone records a finished batch. index is zero-based, as passed by batch.Run.
func (t *Tracker) BatchDone(index, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Batches = index + 1
	t.snap.TotalBatches = total
	t.snap.UpdatedAt = t.clock.Now()
}

// StartSubmitting closes the console bar and moves to the submission phase.
func (t *Tracker) StartSubmitting() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeBar()
	t.snap.Stage = StageSubmitting
	t.snap.UpdatedAt = t.clock.Now()
}

// Submitted counts one accepted indexing request.
func (t *Tracker) Submitted() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.snap.Submitted++
	t.snap.UpdatedAt = t.clock.Now()
}

// Finish marks the run done, or failed when err is non-nil.
func (t *Tracker) Finish(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closeBar()
	t.snap.Stage = StageDone
	if err != nil {
		t.snap.Stage = StageFailed
		t.snap.Error = err.Error()
	}
	t.snap.UpdatedAt = t.clock.Now()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

// closeBar completes the bar at its current count and waits for the final render.
func (t *Tracker) closeBar() {
	if t.bar == nil {
		return
	}
	t.bar.SetTotal(-1, true)
	t.bars.Wait()
	t.bar = nil
	t.bars = nil
}
