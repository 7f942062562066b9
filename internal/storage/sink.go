package storage

import (
	"context"

	"github.com/halvari/crmdedup/internal/merge"
	"github.com/halvari/crmdedup/internal/types"
)

// RunSink adapts the Store to the executor's outcome sink. Writes use a
// background context deliberately: a canceled run still drains its in-flight
// merges, and those outcomes must keep landing in the trail.
type RunSink struct {
	store *Store
}

var _ merge.Sink = (*RunSink)(nil)

// NewRunSink returns a sink writing to store.
func NewRunSink(store *Store) *RunSink {
	return &RunSink{store: store}
}

func (s *RunSink) BeginRun(run types.Run) error {
	return s.store.SaveRun(context.Background(), run)
}

func (s *RunSink) AppendOutcome(runID string, outcome types.MergeOutcome) error {
	return s.store.AppendOutcomes(context.Background(), runID, []types.MergeOutcome{outcome})
}

func (s *RunSink) FinishRun(run types.Run) error {
	return s.store.FinishRun(context.Background(), run)
}
