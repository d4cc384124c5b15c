package observability

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/docforge/dbopen"
	"github.com/hazyhaar/docforge/idgen"
)

// EventLogger writes one tool_runs row per dispatch.
type EventLogger struct {
	db     *sql.DB
	newID  idgen.Generator
	logger *slog.Logger
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets the run ID generator.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// WithLogger sets the logger used to report storage failures.
func WithLogger(logger *slog.Logger) EventLoggerOption {
	return func(l *EventLogger) { l.logger = logger }
}

// NewEventLogger creates a logger backed by db, which must carry Schema.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:     db,
		newID:  idgen.Prefixed("run_", idgen.Default),
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// RecordRun inserts ev. Errors are logged and swallowed: a failing store
// never fails a run.
func (l *EventLogger) RecordRun(ctx context.Context, ev RunEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	var kind sql.NullString
	if ev.ErrorKind != "" {
		kind = sql.NullString{String: ev.ErrorKind, Valid: true}
	}
	_, err := dbopen.Exec(context.WithoutCancel(ctx), l.db, `
		INSERT INTO tool_runs (
			run_id, workspace_id, tool, target, outcome, error_kind,
			duration_ms, input_bytes, created_at
		) VALUES (?,?,?,?,?,?,?,?,?)`,
		l.newID(), ev.Workspace, ev.Tool, ev.Target, ev.Outcome, kind,
		ev.Duration.Milliseconds(), ev.InputBytes, ev.At.Unix())
	if err != nil {
		l.logger.Error("observability: record run failed", "error", err, "tool", ev.Tool)
	}
}

// Recent returns the latest events, newest first. An empty tool matches
// every tool.
func (l *EventLogger) Recent(ctx context.Context, tool string, limit int) ([]RunEvent, error) {
	q := `SELECT COALESCE(workspace_id, ''), tool, target, outcome, COALESCE(error_kind, ''),
		duration_ms, input_bytes, created_at FROM tool_runs`
	var args []any
	if tool != "" {
		q += " WHERE tool = ?"
		args = append(args, tool)
	}
	q += " ORDER BY created_at DESC, rowid DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := l.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []RunEvent
	for rows.Next() {
		var ev RunEvent
		var ms, at int64
		if err := rows.Scan(&ev.Workspace, &ev.Tool, &ev.Target, &ev.Outcome, &ev.ErrorKind, &ms, &ev.InputBytes, &at); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		ev.Duration = time.Duration(ms) * time.Millisecond
		ev.At = time.Unix(at, 0)
		out = append(out, ev)
	}
	return out, rows.Err()
}

// Cleanup deletes runs and metrics older than retentionDays, in one
// transaction. Zero or negative keeps everything.
func Cleanup(ctx context.Context, db *sql.DB, retentionDays int) error {
	if retentionDays <= 0 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays).Unix()
	return dbopen.RunTx(ctx, db, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM tool_runs WHERE created_at < ?", cutoff); err != nil {
			return fmt.Errorf("cleanup tool_runs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM metrics_timeseries WHERE timestamp < ?", cutoff); err != nil {
			return fmt.Errorf("cleanup metrics: %w", err)
		}
		return nil
	})
}
