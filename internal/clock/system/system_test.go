package system

import (
	"strings"
	"testing"
	"time"
)

func TestClockNowUTC(t *testing.T) {
	t.Parallel()

	clk := New()
	before := time.Now().UTC().Add(-time.Second)
	got := clk.Now()
	after := time.Now().UTC().Add(time.Second)

	if got.Location() != time.UTC {
		t.Fatalf("expected UTC location, got %v", got.Location())
	}
	if got.Before(before) || got.After(after) {
		t.Fatalf("expected %v to be between %v and %v", got, before, after)
	}
	if !strings.HasSuffix(got.Format(time.RFC3339), "Z") {
		t.Fatalf("expected RFC3339 timestamp in Zulu time, got %s", got.Format(time.RFC3339))
	}
}
