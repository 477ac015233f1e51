// Package app runs one reconciliation: resolve the property, check every page
// against the status cache and the inspection API, then request indexing for
// the pages that need it.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/batch"
	"github.com/JakeFAU/gsc-indexer/internal/cache"
	"github.com/JakeFAU/gsc-indexer/internal/indexer"
	"github.com/JakeFAU/gsc-indexer/internal/logging"
	"github.com/JakeFAU/gsc-indexer/internal/metrics"
	"github.com/JakeFAU/gsc-indexer/internal/progress"
	"github.com/JakeFAU/gsc-indexer/internal/site"
	"github.com/JakeFAU/gsc-indexer/internal/submit"
)

const tracerName = "github.com/JakeFAU/gsc-indexer/internal/app"

// Deps are the collaborators of a run. Publisher, Sleeper and Tracker are optional.
type Deps struct {
	Sites     indexer.SiteLister
	Sitemaps  indexer.SitemapLister
	Inspector indexer.Inspector
	Indexing  indexer.IndexingAPI
	Pages     indexer.PageSource
	Cache     *cache.Cache
	Locker    indexer.Locker
	Publisher indexer.Publisher
	Clock     indexer.Clock
	IDs       indexer.IDGenerator
	Tracker   *progress.Tracker
	Sleeper   submit.Sleeper
	Logger    *zap.Logger
}

// Settings are the tunables of a run.
type Settings struct {
	BatchSize int
	Quota     submit.Config
	// Topic receives run events when a Publisher is set.
	Topic string
	// Textfile, when set, receives the Prometheus registry at the end of a run.
	Textfile string
}

// App owns the wired collaborators and anything that must be closed afterwards.
type App struct {
	deps     Deps
	settings Settings
	closers  []func(context.Context) error
}

// New wires an App from explicit dependencies.
func New(deps Deps, settings Settings) (*App, error) {
	switch {
	case deps.Sites == nil, deps.Sitemaps == nil, deps.Inspector == nil, deps.Indexing == nil:
		return nil, errors.New("console api dependencies are required")
	case deps.Pages == nil:
		return nil, errors.New("page source is required")
	case deps.Cache == nil:
		return nil, errors.New("status cache is required")
	case deps.Locker == nil:
		return nil, errors.New("locker is required")
	case deps.Clock == nil, deps.IDs == nil:
		return nil, errors.New("clock and id generator are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Tracker == nil {
		deps.Tracker = progress.New(deps.Clock, nil)
	}
	if settings.BatchSize <= 0 {
		settings.BatchSize = batch.DefaultSize
	}
	return &App{deps: deps, settings: settings}, nil
}

// Tracker exposes run progress for the status server.
func (a *App) Tracker() *progress.Tracker {
	return a.deps.Tracker
}

// Close releases clients opened by Build, in reverse order.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}

func (a *App) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

// Run reconciles the property named by input. When urls is non-empty those
// pages replace the sitemap listing. Fatal conditions come back wrapped around
// the indexer sentinel errors.
func (a *App) Run(ctx context.Context, input string, urls []string) (report indexer.RunReport, err error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "reconcile")
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	runID, err := a.deps.IDs.NewID()
	if err != nil {
		return report, err
	}
	report = indexer.RunReport{
		RunID:     runID,
		PerStatus: make(map[indexer.Status][]string),
		Outcomes:  make(map[string]indexer.Outcome),
		StartedAt: a.deps.Clock.Now(),
	}
	tracker := a.deps.Tracker
	tracker.Begin(runID, input)
	defer func() { tracker.Finish(err) }()

	logger := logging.ForRun(a.deps.Logger, runID, input)
	span.SetAttributes(attribute.String("run.id", runID), attribute.String("run.input", input))

	if input == "" {
		return report, indexer.ErrMissingInput
	}

	siteURL, err := site.CheckSiteURL(ctx, a.deps.Sites, input)
	if err != nil {
		return report, err
	}
	report.SiteURL = siteURL
	siteKey := site.CacheKey(siteURL)
	logger = logging.ForRun(a.deps.Logger, runID, siteURL)
	logger.Info("resolved property")

	release, err := a.deps.Locker.Lock(ctx, siteKey)
	if err != nil {
		return report, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if relErr := release(releaseCtx); relErr != nil {
			logger.Warn("release site lock failed", zap.Error(relErr))
		}
	}()

	pages, err := a.pages(ctx, logger, siteURL, urls, &report)
	if err != nil {
		return report, err
	}
	report.TotalURLs = len(pages)
	span.AddEvent("pages.listed", trace.WithAttributes(attribute.Int("pages", len(pages))))

	store, err := a.deps.Cache.Load(ctx, siteKey)
	if err != nil {
		return report, err
	}

	statuses, checked, checkErr := a.check(ctx, logger, siteURL, pages, store)
	report.Checked = checked
	span.AddEvent("pages.checked", trace.WithAttributes(attribute.Int("checked", checked)))

	persistCtx := ctx
	if checkErr != nil {
		persistCtx = context.WithoutCancel(ctx)
	}
	if err := a.deps.Cache.Persist(persistCtx, siteKey, store); err != nil {
		return report, errors.Join(checkErr, err)
	}
	if checkErr != nil {
		return report, checkErr
	}

	report.PerStatus = group(pages, statuses)
	logSummary(logger, report)

	if err := a.submit(ctx, logger, runID, &report); err != nil {
		return report, err
	}

	report.FinishedAt = a.deps.Clock.Now()
	a.finish(ctx, logger, report)
	return report, nil
}

// pages lists the URLs to reconcile: the manual override, or every page of every sitemap.
func (a *App) pages(
	ctx context.Context,
	logger *zap.Logger,
	siteURL string,
	urls []string,
	report *indexer.RunReport,
) ([]string, error) {
	if len(urls) > 0 {
		pages := site.CheckCustomURLs(siteURL, urls)
		logger.Info("using provided urls", zap.Int("pages", len(pages)))
		return pages, nil
	}

	sitemaps, err := a.deps.Sitemaps.ListSitemaps(ctx, siteURL)
	if err != nil {
		return nil, err
	}
	if len(sitemaps) == 0 {
		return nil, fmt.Errorf("%w for %s", indexer.ErrNoSitemaps, siteURL)
	}
	report.Sitemaps = sitemaps

	pages, err := a.deps.Pages.Pages(ctx, sitemaps)
	if err != nil {
		return nil, err
	}
	logger.Info("found pages in sitemaps",
		zap.Int("sitemaps", len(sitemaps)),
		zap.Int("pages", len(pages)),
	)
	return pages, nil
}

// check settles a status for every page, from the cache when fresh and from
// the inspection API otherwise. It returns the statuses and the number of
// remote checks made.
func (a *App) check(
	ctx context.Context,
	logger *zap.Logger,
	siteURL string,
	pages []string,
	store *cache.Store,
) (map[string]indexer.Status, int, error) {
	var mu sync.Mutex
	statuses := make(map[string]indexer.Status, len(pages))
	checked := 0
	record := func(pageURL string, status indexer.Status, remote bool) {
		mu.Lock()
		defer mu.Unlock()
		statuses[pageURL] = status
		if remote {
			checked++
		}
	}

	task := func(ctx context.Context, pageURL string) error {
		if entry, ok := store.Get(pageURL); ok && !a.deps.Cache.ShouldRecheck(entry, a.deps.Clock.Now()) {
			metrics.ObserveCacheHit()
			record(pageURL, entry.Status, false)
			a.deps.Tracker.URLDone(true)
			return nil
		}

		result, err := a.deps.Inspector.InspectURL(ctx, siteURL, pageURL)
		if err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
		status := indexer.Classify(result.StatusCode, result.CoverageState, err)
		switch {
		case err != nil:
			logger.Warn("inspection failed", zap.String("url", pageURL), zap.Error(err))
		case result.StatusCode < 300 && status == indexer.StatusError:
			logger.Warn("unrecognized coverage state",
				zap.String("url", pageURL),
				zap.String("coverage_state", result.CoverageState),
			)
		}

		store.Put(pageURL, indexer.CacheEntry{Status: status, LastCheckedAt: a.deps.Clock.Now()})
		metrics.ObserveURLCheck(string(status))
		record(pageURL, status, true)
		a.deps.Tracker.URLDone(false)
		return nil
	}

	batches := (len(pages) + a.settings.BatchSize - 1) / a.settings.BatchSize
	a.deps.Tracker.StartChecks(len(pages), batches)
	err := batch.Run(ctx, task, pages, a.settings.BatchSize, func(index, total int) {
		metrics.ObserveBatch()
		a.deps.Tracker.BatchDone(index, total)
		logger.Debug("batch complete", zap.Int("batch", index), zap.Int("batches", total))
	})
	return statuses, checked, err
}

// submit requests indexing for every indexable page, one at a time.
func (a *App) submit(ctx context.Context, logger *zap.Logger, runID string, report *indexer.RunReport) error {
	pending := report.IndexablePages()
	a.deps.Tracker.StartSubmitting()
	if len(pending) == 0 {
		logger.Info("nothing to submit")
		return nil
	}
	logger.Info("requesting indexing", zap.Int("pages", len(pending)))

	cfg := a.settings.Quota
	cfg.Topic = a.settings.Topic
	cfg.RunID = runID
	opts := []submit.Option{
		submit.WithClock(a.deps.Clock),
		submit.WithLogger(logger),
		submit.WithSleeper(a.deps.Sleeper),
		submit.WithOutcomeHook(func(_ string, outcome indexer.Outcome) {
			if outcome == indexer.OutcomeSubmitted {
				a.deps.Tracker.Submitted()
			}
		}),
	}
	if a.deps.Publisher != nil {
		opts = append(opts, submit.WithPublisher(a.deps.Publisher))
	}

	outcomes, err := submit.New(a.deps.Indexing, cfg, opts...).ProcessAll(ctx, pending)
	report.Outcomes = outcomes
	return err
}

// finish exports metrics and announces the run. Failures here never fail the run.
func (a *App) finish(ctx context.Context, logger *zap.Logger, report indexer.RunReport) {
	metrics.MarkRunFinished(report.FinishedAt)
	if a.settings.Textfile != "" {
		if err := metrics.WriteTextfile(a.settings.Textfile); err != nil {
			logger.Warn("write metrics textfile failed", zap.Error(err))
		}
	}

	if a.deps.Publisher == nil {
		return
	}
	event := indexer.Event{
		Type:       indexer.EventRunCompleted,
		RunID:      report.RunID,
		SiteURL:    report.SiteURL,
		OccurredAt: report.FinishedAt,
		Report:     &report,
	}
	if _, err := a.deps.Publisher.Publish(ctx, a.settings.Topic, event); err != nil {
		logger.Warn("publish run event failed", zap.Error(err))
	}
}

// PrintSummary writes the per-status breakdown of report to w.
func PrintSummary(w io.Writer, report indexer.RunReport) error {
	for _, status := range indexer.AllStatuses() {
		pages := report.PerStatus[status]
		if len(pages) == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "%s %s: %d pages\n", indexer.Emoji(status), status, len(pages)); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}
	submitted := 0
	for _, outcome := range report.Outcomes {
		if outcome == indexer.OutcomeSubmitted {
			submitted++
		}
	}
	if _, err := fmt.Fprintf(w, "👍 Requested indexing for %d of %d pages\n", submitted, len(report.Outcomes)); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
