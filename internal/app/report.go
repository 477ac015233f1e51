package app

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/gsc-indexer/internal/indexer"
)

// group buckets pages by status, keeping sitemap order inside each bucket.
func group(pages []string, statuses map[string]indexer.Status) map[indexer.Status][]string {
	out := make(map[indexer.Status][]string)
	for _, pageURL := range pages {
		status, ok := statuses[pageURL]
		if !ok {
			continue
		}
		out[status] = append(out[status], pageURL)
	}
	return out
}

func logSummary(logger *zap.Logger, report indexer.RunReport) {
	for _, status := range indexer.AllStatuses() {
		pages := report.PerStatus[status]
		if len(pages) == 0 {
			continue
		}
		logger.Info(indexer.Emoji(status)+" "+string(status),
			zap.Int("pages", len(pages)),
		)
		for _, pageURL := range pages {
			logger.Debug("page status", zap.String("url", pageURL), zap.String("status", string(status)))
		}
	}
	logger.Info("status check complete",
		zap.Int("pages", report.TotalURLs),
		zap.Int("checked", report.Checked),
	)
}
