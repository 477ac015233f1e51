package indexer

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Status is the index coverage state of a URL. The set is closed: values only
// come from Classify or Parse, which fold anything unrecognized into StatusError.
type Status string

// Status values, serialized as the console's coverage state strings.
const (
	StatusSubmittedAndIndexed                   Status = "Submitted and indexed"
	StatusDuplicateWithoutUserSelectedCanonical Status = "Duplicate without user-selected canonical"
	StatusCrawledCurrentlyNotIndexed            Status = "Crawled - currently not indexed"
	StatusDiscoveredCurrentlyNotIndexed         Status = "Discovered - currently not indexed"
	StatusPageWithRedirect                      Status = "Page with redirect"
	StatusURLIsUnknownToGoogle                  Status = "URL is unknown to Google"
	StatusRateLimited                           Status = "RateLimited"
	StatusForbidden                             Status = "Forbidden"
	StatusError                                 Status = "Error"
)

var allStatuses = []Status{
	StatusSubmittedAndIndexed,
	StatusDuplicateWithoutUserSelectedCanonical,
	StatusCrawledCurrentlyNotIndexed,
	StatusDiscoveredCurrentlyNotIndexed,
	StatusPageWithRedirect,
	StatusURLIsUnknownToGoogle,
	StatusRateLimited,
	StatusForbidden,
	StatusError,
}

// AllStatuses returns every Status in reporting order.
func AllStatuses() []Status {
	out := make([]Status, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// Parse maps a coverage state string onto the enumeration. The second return
// value is false when the string was unknown and folded into StatusError.
func Parse(raw string) (Status, bool) {
	for _, s := range allStatuses {
		if string(s) == raw {
			return s, true
		}
	}
	return StatusError, false
}

// Classify maps the outcome of an inspection call onto a Status.
func Classify(code int, coverageState string, err error) Status {
	switch {
	case err != nil:
		return StatusError
	case code == http.StatusForbidden:
		return StatusForbidden
	case code == http.StatusTooManyRequests:
		return StatusRateLimited
	case code >= http.StatusMultipleChoices:
		return StatusError
	}
	status, _ := Parse(coverageState)
	return status
}

// IsIndexable reports whether a URL in this state should get a submission attempt.
func IsIndexable(s Status) bool {
	switch s {
	case StatusDiscoveredCurrentlyNotIndexed,
		StatusCrawledCurrentlyNotIndexed,
		StatusURLIsUnknownToGoogle,
		StatusForbidden,
		StatusError,
		StatusRateLimited:
		return true
	default:
		return false
	}
}

// Emoji returns the console glyph for a status.
func Emoji(s Status) string {
	switch s {
	case StatusSubmittedAndIndexed:
		return "✅"
	case StatusDuplicateWithoutUserSelectedCanonical:
		return "😵"
	case StatusCrawledCurrentlyNotIndexed, StatusDiscoveredCurrentlyNotIndexed:
		return "👀"
	case StatusPageWithRedirect:
		return "🔀"
	case StatusURLIsUnknownToGoogle:
		return "❓"
	case StatusRateLimited:
		return "🚦"
	case StatusForbidden:
		return "🔐"
	default:
		return "❌"
	}
}

// UnmarshalJSON decodes a status, folding unknown values into StatusError.
func (s *Status) UnmarshalJSON(data []byte) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	*s, _ = Parse(raw)
	return nil
}
