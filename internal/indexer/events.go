package indexer

import "time"

// Event types published to the events topic.
const (
	EventIndexingRequested = "indexing.requested"
	EventRunCompleted      = "run.completed"
)

// Event is the payload published for submissions and finished runs.
type Event struct {
	Type       string     `json:"type"`
	RunID      string     `json:"run_id,omitempty"`
	SiteURL    string     `json:"site_url,omitempty"`
	URL        string     `json:"url,omitempty"`
	OccurredAt time.Time  `json:"occurred_at"`
	Report     *RunReport `json:"report,omitempty"`
}
