// Package system provides the wall clock used to stamp cache entries and events.
package system

import "time"

// Clock implements indexer.Clock using time.Now.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current time in UTC, so persisted timestamps carry a Z suffix.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
