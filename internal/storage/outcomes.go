package storage

import (
	"context"
	"fmt"

	"github.com/halvari/crmdedup/internal/types"
)

// AppendOutcomes inserts outcome rows for a run in one transaction. The
// transaction is BEGIN IMMEDIATE: the write lock is taken up front so
// concurrent appenders serialize here instead of failing mid-batch.
func (s *Store) AppendOutcomes(ctx context.Context, runID string, outcomes []types.MergeOutcome) error {
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	if len(outcomes) == 0 {
		return nil
	}
	for i := range outcomes {
		if err := outcomes[i].Validate(); err != nil {
			return fmt.Errorf("invalid outcome: %w", err)
		}
	}

	// database/sql's BeginTx always opens DEFERRED transactions on this
	// driver, so the mode is set with raw SQL on a pinned connection.
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			// Background context: the rollback must run even when ctx
			// is already canceled.
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	for _, oc := range outcomes {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO merge_outcomes (
				run_id, group_key, primary_id, primary_name, primary_created,
				mergee_id, mergee_name, mergee_created, status, detail
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`,
			runID, oc.GroupKey, oc.PrimaryID, oc.PrimaryName, oc.PrimaryCreatedRaw,
			oc.MergeeID, oc.MergeeName, oc.MergeeCreatedRaw, string(oc.Status), oc.Detail,
		)
		if err != nil {
			return fmt.Errorf("inserting outcome for mergee %s: %w", oc.MergeeID, err)
		}
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return fmt.Errorf("committing outcomes: %w", err)
	}
	committed = true
	return nil
}

// OutcomesForRun returns a run's outcome rows in insertion order.
func (s *Store) OutcomesForRun(ctx context.Context, runID string) ([]types.MergeOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT group_key, primary_id, primary_name, primary_created,
		       mergee_id, mergee_name, mergee_created, status, detail
		FROM merge_outcomes
		WHERE run_id = ?
		ORDER BY id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("querying outcomes for run %s: %w", runID, err)
	}
	defer rows.Close()

	var outcomes []types.MergeOutcome
	for rows.Next() {
		var oc types.MergeOutcome
		var status string
		err := rows.Scan(
			&oc.GroupKey, &oc.PrimaryID, &oc.PrimaryName, &oc.PrimaryCreatedRaw,
			&oc.MergeeID, &oc.MergeeName, &oc.MergeeCreatedRaw, &status, &oc.Detail,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning outcome: %w", err)
		}
		oc.Status = types.OutcomeStatus(status)
		outcomes = append(outcomes, oc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating outcomes: %w", err)
	}
	return outcomes, nil
}
