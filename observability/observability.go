// CLAUDE:SUMMARY Tool-run telemetry: RunEvent/Recorder contract, SQLite event log (tool_runs) and per-tool counters with buffered duration metrics.
// Package observability records what the workspaces dispatch. It stores
// metadata only: tool, target, outcome, error kind, duration and input size.
// Document content, parameters and prompts never reach it.
//
// Persistence is optional. With no database every component still works in
// memory and the event log is simply not written.
package observability

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hazyhaar/docforge/dbopen"
)

// Run outcomes.
const (
	OutcomeSuccess   = "success"
	OutcomeError     = "error"
	OutcomeCancelled = "cancelled"
)

// RunEvent describes one dispatch.
type RunEvent struct {
	Workspace  string        `json:"workspace,omitempty"`
	Tool       string        `json:"tool"`
	Target     string        `json:"target"`
	Outcome    string        `json:"outcome"`
	ErrorKind  string        `json:"error_kind,omitempty"`
	Duration   time.Duration `json:"duration"`
	InputBytes int64         `json:"input_bytes"`
	At         time.Time     `json:"at"`
}

// Recorder receives run events. Implementations must not block the caller
// on storage failures.
type Recorder interface {
	RecordRun(ctx context.Context, ev RunEvent)
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, ev RunEvent)

func (f RecorderFunc) RecordRun(ctx context.Context, ev RunEvent) { f(ctx, ev) }

// Multi fans an event out to every non-nil recorder.
func Multi(rs ...Recorder) Recorder {
	var live []Recorder
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	return RecorderFunc(func(ctx context.Context, ev RunEvent) {
		for _, r := range live {
			r.RecordRun(ctx, ev)
		}
	})
}

// Open opens (or creates) the observability database at path and applies
// the schema.
func Open(path string) (*sql.DB, error) {
	db, err := dbopen.Open(path, dbopen.WithMkdirAll(), dbopen.WithSchema(Schema))
	if err != nil {
		return nil, fmt.Errorf("observability: %w", err)
	}
	return db, nil
}
