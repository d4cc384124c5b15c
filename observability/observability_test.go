package observability

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/hazyhaar/docforge/dbopen"
	"github.com/hazyhaar/docforge/idgen"
)

func setupObsDB(t *testing.T) *sql.DB {
	t.Helper()
	return dbopen.OpenMemory(t, dbopen.WithSchema(Schema))
}

func TestInit_CreatesTables(t *testing.T) {
	db := setupObsDB(t)
	if err := Init(db); err != nil {
		t.Fatalf("Init is not idempotent: %v", err)
	}
	for _, table := range []string{"tool_runs", "metrics_timeseries"} {
		var count int
		db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&count)
		if count != 1 {
			t.Fatalf("table %s not found", table)
		}
	}
}

func TestEventLogger_RecordAndRecent(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db, WithEventIDGenerator(idgen.Sequence("run_")))
	ctx := context.Background()
	base := time.Unix(1_700_000_000, 0)

	l.RecordRun(ctx, RunEvent{Workspace: "ws_1", Tool: "pdf-merge", Target: "local", Outcome: OutcomeSuccess,
		Duration: 120 * time.Millisecond, InputBytes: 2048, At: base})
	l.RecordRun(ctx, RunEvent{Workspace: "ws_2", Tool: "pdf-to-word", Target: "ai", Outcome: OutcomeError,
		ErrorKind: "network", Duration: time.Second, At: base.Add(time.Minute)})

	all, err := l.Recent(ctx, "", 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 2 || all[0].Tool != "pdf-to-word" {
		t.Fatalf("recent = %+v", all)
	}
	if all[0].ErrorKind != "network" || all[0].Duration != time.Second {
		t.Fatalf("ai run = %+v", all[0])
	}
	if all[1].ErrorKind != "" || all[1].InputBytes != 2048 || all[1].Workspace != "ws_1" {
		t.Fatalf("local run = %+v", all[1])
	}

	merge, err := l.Recent(ctx, "pdf-merge", 10)
	if err != nil || len(merge) != 1 {
		t.Fatalf("filtered = %v, %v", merge, err)
	}
}

func TestEventLogger_StoreFailureSwallowed(t *testing.T) {
	// WHAT: A closed database does not panic or surface an error.
	// WHY: Observability must never fail a run.
	db, err := dbopen.Open(":memory:", dbopen.WithSchema(Schema))
	if err != nil {
		t.Fatal(err)
	}
	db.Close()
	NewEventLogger(db).RecordRun(context.Background(), RunEvent{Tool: "x", Outcome: OutcomeSuccess})
}

func TestCleanup(t *testing.T) {
	db := setupObsDB(t)
	l := NewEventLogger(db)
	ctx := context.Background()
	l.RecordRun(ctx, RunEvent{Tool: "old", Outcome: OutcomeSuccess, At: time.Now().AddDate(0, 0, -40)})
	l.RecordRun(ctx, RunEvent{Tool: "new", Outcome: OutcomeSuccess})

	if err := Cleanup(ctx, db, 30); err != nil {
		t.Fatal(err)
	}
	runs, _ := l.Recent(ctx, "", 0)
	if len(runs) != 1 || runs[0].Tool != "new" {
		t.Fatalf("after cleanup: %+v", runs)
	}
	if err := Cleanup(ctx, db, 0); err != nil {
		t.Fatal(err)
	}
}

func TestMetrics_CountsInMemory(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	defer m.Close()
	ctx := context.Background()
	m.RecordRun(ctx, RunEvent{Tool: "b", Outcome: OutcomeSuccess})
	m.RecordRun(ctx, RunEvent{Tool: "a", Outcome: OutcomeError, ErrorKind: "parse"})
	m.RecordRun(ctx, RunEvent{Tool: "a", Outcome: OutcomeError, ErrorKind: "parse"})
	m.RecordRun(ctx, RunEvent{Tool: "a", Outcome: OutcomeCancelled})

	c := m.Counts()
	if len(c) != 2 || c[0].Tool != "a" {
		t.Fatalf("counts = %+v", c)
	}
	if c[0].Runs != 3 || c[0].Failures != 2 || c[0].Cancelled != 1 || c[0].ByKind["parse"] != 2 {
		t.Fatalf("a = %+v", c[0])
	}
	if c[1].Successes != 1 {
		t.Fatalf("b = %+v", c[1])
	}

	// Counts returns copies.
	c[0].ByKind["parse"] = 99
	if m.Counts()[0].ByKind["parse"] != 2 {
		t.Fatal("Counts leaked internal map")
	}
	if pts, err := m.Query(ctx, "", 0); err != nil || pts != nil {
		t.Fatalf("query without db = %v, %v", pts, err)
	}
}

func TestMetrics_FlushToDB(t *testing.T) {
	db := setupObsDB(t)
	m := NewMetrics(MetricsConfig{DB: db, BufferSize: 1000, FlushInterval: time.Hour})
	ctx := context.Background()
	m.RecordRun(ctx, RunEvent{Tool: "pdf-merge", Target: "local", Outcome: OutcomeSuccess, Duration: 250 * time.Millisecond, InputBytes: 10})
	m.Close()
	m.Close()

	pts, err := m.Query(ctx, MetricRunDurationMs, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 1 || pts[0].Value != 250 || pts[0].Labels["tool"] != "pdf-merge" || pts[0].Unit != "milliseconds" {
		t.Fatalf("points = %+v", pts)
	}
	all, _ := m.Query(ctx, "", 0)
	if len(all) != 2 {
		t.Fatalf("all points = %d", len(all))
	}
}

func TestMulti(t *testing.T) {
	var got []string
	r := Multi(nil,
		RecorderFunc(func(_ context.Context, ev RunEvent) { got = append(got, "1:"+ev.Tool) }),
		RecorderFunc(func(_ context.Context, ev RunEvent) { got = append(got, "2:"+ev.Tool) }),
	)
	r.RecordRun(context.Background(), RunEvent{Tool: "t"})
	if len(got) != 2 || got[0] != "1:t" || got[1] != "2:t" {
		t.Fatalf("got %v", got)
	}
}
