// Package storage persists the merge audit trail in SQLite: one row per
// pipeline run and one append-only row per attempted merge. The CSV merge
// log is a report; this is the record the runs command reads back.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/halvari/crmdedup/internal/types"
)

// Store is the SQLite-backed audit trail. Safe for concurrent use; writers
// serialize on SQLite's write lock.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the audit database at path.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	// WAL mode keeps readers unblocked while a run appends outcomes.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=ON")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}
	return &Store{db: db}, nil
}

// SaveRun inserts the run row at start time, before any outcome exists.
func (s *Store) SaveRun(ctx context.Context, run types.Run) error {
	if err := run.Validate(); err != nil {
		return fmt.Errorf("invalid run: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, mode, strategy, dry_run, merged, skipped, failed)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.StartedAt.UTC(), nullableTime(run.FinishedAt),
		string(run.Mode), run.Strategy, run.Mode == types.RunDryRun,
		run.Merged, run.Skipped, run.Failed,
	)
	if err != nil {
		return fmt.Errorf("inserting run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun records the final counters and finish time for a run started with
// SaveRun.
func (s *Store) FinishRun(ctx context.Context, run types.Run) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, merged = ?, skipped = ?, failed = ?
		WHERE id = ?
	`, nullableTime(run.FinishedAt), run.Merged, run.Skipped, run.Failed, run.ID)
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run %s: %w", run.ID, err)
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", run.ID)
	}
	return nil
}

// GetRun returns the run with the given ID, or nil when it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*types.Run, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, mode, strategy, merged, skipped, failed
		FROM runs
		WHERE id = ?
	`, id)
	run, err := scanRun(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting run %s: %w", id, err)
	}
	return &run, nil
}

// ListRuns returns runs newest first. limit <= 0 returns all of them.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]types.Run, error) {
	query := `
		SELECT id, started_at, finished_at, mode, strategy, merged, skipped, failed
		FROM runs
		ORDER BY started_at DESC, id
	`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []types.Run
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating runs: %w", err)
	}
	return runs, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func scanRun(scan func(dest ...any) error) (types.Run, error) {
	var run types.Run
	var finishedAt sql.NullTime
	var mode string
	err := scan(
		&run.ID, &run.StartedAt, &finishedAt, &mode, &run.Strategy,
		&run.Merged, &run.Skipped, &run.Failed,
	)
	if err != nil {
		return types.Run{}, err
	}
	run.Mode = types.RunMode(mode)
	if finishedAt.Valid {
		t := finishedAt.Time
		run.FinishedAt = &t
	}
	return run, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}
