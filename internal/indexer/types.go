package indexer

import (
	"errors"
	"time"
)

// Fatal conditions. The run pipeline wraps these and cmd maps any of them to exit code 1.
var (
	ErrMissingInput       = errors.New("missing domain or site URL")
	ErrMissingCredentials = errors.New("missing service account credentials")
	ErrNoSitemaps         = errors.New("no sitemaps found")
	ErrNoSiteAccess       = errors.New("service account has no access to site")
	ErrQuotaExceeded      = errors.New("indexing quota exceeded")
)

// CacheEntry is the last known status of one URL.
type CacheEntry struct {
	Status        Status    `json:"status"`
	LastCheckedAt time.Time `json:"lastCheckedAt"`
}

// Outcome is the result of one submission attempt.
type Outcome string

// Submission outcomes.
const (
	OutcomeSubmitted        Outcome = "submitted"
	OutcomeAlreadyRequested Outcome = "already_requested"
	OutcomeFailed           Outcome = "failed"
)

// InspectResult carries the raw answer of a URL inspection call.
type InspectResult struct {
	StatusCode    int
	CoverageState string
}

// RunReport summarizes one reconciliation run.
type RunReport struct {
	RunID      string              `json:"run_id"`
	SiteURL    string              `json:"site_url"`
	Sitemaps   []string            `json:"sitemaps"`
	TotalURLs  int                 `json:"total_urls"`
	Checked    int                 `json:"checked"`
	PerStatus  map[Status][]string `json:"per_status"`
	Outcomes   map[string]Outcome  `json:"outcomes"`
	StartedAt  time.Time           `json:"started_at"`
	FinishedAt time.Time           `json:"finished_at"`
}

// IndexablePages returns the URLs eligible for submission, in status order.
func (r RunReport) IndexablePages() []string {
	var out []string
	for _, status := range AllStatuses() {
		if IsIndexable(status) {
			out = append(out, r.PerStatus[status]...)
		}
	}
	return out
}
