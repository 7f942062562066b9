package storage

// Applied on every Open; CREATE IF NOT EXISTS keeps it idempotent.
const schema = `
-- Pipeline runs
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    started_at DATETIME NOT NULL,
    finished_at DATETIME,
    mode TEXT NOT NULL CHECK(mode IN ('dry-run', 'apply', 'review')),
    strategy TEXT NOT NULL DEFAULT '',
    dry_run INTEGER NOT NULL DEFAULT 0,
    merged INTEGER NOT NULL DEFAULT 0,
    skipped INTEGER NOT NULL DEFAULT 0,
    failed INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);

-- Merge audit rows, append-only: inserted as decided, never updated
CREATE TABLE IF NOT EXISTS merge_outcomes (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    run_id TEXT NOT NULL,
    group_key TEXT NOT NULL,
    primary_id TEXT NOT NULL,
    primary_name TEXT NOT NULL DEFAULT '',
    primary_created TEXT NOT NULL DEFAULT '',
    mergee_id TEXT NOT NULL,
    mergee_name TEXT NOT NULL DEFAULT '',
    mergee_created TEXT NOT NULL DEFAULT '',
    status TEXT NOT NULL,
    detail TEXT NOT NULL DEFAULT '',
    created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_merge_outcomes_run ON merge_outcomes(run_id);
CREATE INDEX IF NOT EXISTS idx_merge_outcomes_status ON merge_outcomes(status);
`
