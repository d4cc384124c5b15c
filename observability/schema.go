package observability

import "database/sql"

// Schema is the DDL for the observability tables. Open applies it through
// dbopen; Init applies it to a caller-owned handle.
const Schema = `
CREATE TABLE IF NOT EXISTS tool_runs (
    run_id TEXT PRIMARY KEY,
    workspace_id TEXT,
    tool TEXT NOT NULL,
    target TEXT NOT NULL,
    outcome TEXT NOT NULL,
    error_kind TEXT,
    duration_ms INTEGER NOT NULL,
    input_bytes INTEGER NOT NULL DEFAULT 0,
    created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tool_runs_tool_time ON tool_runs(tool, created_at DESC);
CREATE INDEX IF NOT EXISTS idx_tool_runs_time ON tool_runs(created_at DESC);

CREATE TABLE IF NOT EXISTS metrics_timeseries (
    metric_id TEXT PRIMARY KEY DEFAULT ('met_' || hex(randomblob(16))),
    metric_name TEXT NOT NULL,
    timestamp INTEGER NOT NULL,
    value REAL NOT NULL,
    labels TEXT,
    unit TEXT
);
CREATE INDEX IF NOT EXISTS idx_metrics_name_time
    ON metrics_timeseries(metric_name, timestamp DESC);
`

// Init applies the observability schema to db.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
