package main

import (
	"strings"
	"testing"
	"time"

	"github.com/halvari/crmdedup/internal/types"
)

func TestRunBadge(t *testing.T) {
	if got := runBadge(types.Run{}); !strings.Contains(got, "⚠") {
		t.Errorf("unfinished run badge = %q, want ⚠", got)
	}

	finished := time.Now()
	if got := runBadge(types.Run{FinishedAt: &finished, Failed: 1}); !strings.Contains(got, "✗") {
		t.Errorf("failed run badge = %q, want ✗", got)
	}
	if got := runBadge(types.Run{FinishedAt: &finished}); !strings.Contains(got, "✓") {
		t.Errorf("clean run badge = %q, want ✓", got)
	}
}

func TestOutcomeBadge(t *testing.T) {
	tests := []struct {
		status types.OutcomeStatus
		want   string
	}{
		{types.OutcomeMerged, "✓"},
		{types.OutcomeDryRun, "○"},
		{types.OutcomeFailedForwardRef, "✗"},
		{types.OutcomeFailedOther, "✗"},
		{types.OutcomeSkippedReview, "→"},
		{types.OutcomeSkippedCanonical, "→"},
	}
	for _, tt := range tests {
		if got := outcomeBadge(tt.status); !strings.Contains(got, tt.want) {
			t.Errorf("outcomeBadge(%s) = %q, want %s", tt.status, got, tt.want)
		}
	}
}
