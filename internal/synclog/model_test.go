package synclog

import (
	"testing"
	"time"
)

func TestEntry_Superseded(t *testing.T) {
	due := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, tc := range []struct {
		name string
		e    Entry
		want bool
	}{
		{"claimed by sweeper", Entry{Status: StatusRetrying}, true},
		{"retrying and queued", Entry{Status: StatusRetrying, NextRetryAt: &due}, false},
		{"failed and queued", Entry{Status: StatusFailed, NextRetryAt: &due}, false},
		{"retired", Entry{Status: StatusFailedPermanently}, false},
		{"completed", Entry{Status: StatusCompleted}, false},
	} {
		if got := tc.e.Superseded(); got != tc.want {
			t.Errorf("%s: Superseded = %v, want %v", tc.name, got, tc.want)
		}
	}
}
