package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hazyhaar/docforge/dbopen"
)

// Metric names written to metrics_timeseries.
const (
	MetricRunDurationMs = "tool_run_duration_ms"
	MetricRunInputBytes = "tool_run_input_bytes"
)

// Metric is a single timeseries datapoint.
type Metric struct {
	Name      string
	Timestamp time.Time
	Value     float64
	Labels    map[string]string
	Unit      string
}

// ToolCounts are the per-tool run counters.
type ToolCounts struct {
	Tool      string         `json:"tool"`
	Runs      int64          `json:"runs"`
	Successes int64          `json:"successes"`
	Failures  int64          `json:"failures"`
	Cancelled int64          `json:"cancelled"`
	ByKind    map[string]int `json:"by_kind,omitempty"`
}

// MetricsConfig configures Metrics.
type MetricsConfig struct {
	// DB, when set, receives buffered duration and size datapoints.
	DB *sql.DB `json:"-" yaml:"-"`

	BufferSize    int           `json:"buffer_size" yaml:"buffer_size"`
	FlushInterval time.Duration `json:"flush_interval" yaml:"flush_interval"`

	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *MetricsConfig) defaults() {
	if c.BufferSize <= 0 {
		c.BufferSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Metrics counts runs per tool in memory and, with a database, flushes
// datapoints in batches. Buffer flushes never block RecordRun on I/O.
type Metrics struct {
	cfg    MetricsConfig
	logger *slog.Logger

	mu     sync.Mutex
	counts map[string]*ToolCounts
	buffer []Metric

	flushMu   sync.Mutex
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// NewMetrics creates a counter set. With a DB it starts the flush loop.
func NewMetrics(cfg MetricsConfig) *Metrics {
	cfg.defaults()
	m := &Metrics{
		cfg:    cfg,
		logger: cfg.Logger,
		counts: make(map[string]*ToolCounts),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	if cfg.DB != nil {
		go m.flushLoop()
	} else {
		close(m.done)
	}
	return m
}

// RecordRun implements Recorder.
func (m *Metrics) RecordRun(_ context.Context, ev RunEvent) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	m.mu.Lock()
	c, ok := m.counts[ev.Tool]
	if !ok {
		c = &ToolCounts{Tool: ev.Tool}
		m.counts[ev.Tool] = c
	}
	c.Runs++
	switch ev.Outcome {
	case OutcomeSuccess:
		c.Successes++
	case OutcomeCancelled:
		c.Cancelled++
	default:
		c.Failures++
		if ev.ErrorKind != "" {
			if c.ByKind == nil {
				c.ByKind = make(map[string]int)
			}
			c.ByKind[ev.ErrorKind]++
		}
	}

	full := false
	if m.cfg.DB != nil {
		labels := map[string]string{"tool": ev.Tool, "target": ev.Target, "outcome": ev.Outcome}
		m.buffer = append(m.buffer,
			Metric{Name: MetricRunDurationMs, Timestamp: ev.At, Value: float64(ev.Duration.Milliseconds()), Labels: labels, Unit: "milliseconds"},
			Metric{Name: MetricRunInputBytes, Timestamp: ev.At, Value: float64(ev.InputBytes), Labels: labels, Unit: "bytes"},
		)
		full = len(m.buffer) >= m.cfg.BufferSize
	}
	m.mu.Unlock()

	if full {
		go m.Flush()
	}
}

// Counts returns a copy of the counters, sorted by tool.
func (m *Metrics) Counts() []ToolCounts {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]ToolCounts, 0, len(m.counts))
	for _, tool := range slices.Sorted(maps.Keys(m.counts)) {
		c := *m.counts[tool]
		c.ByKind = maps.Clone(c.ByKind)
		out = append(out, c)
	}
	return out
}

// Flush writes buffered datapoints. It is a no-op without a database.
func (m *Metrics) Flush() {
	if m.cfg.DB == nil {
		return
	}
	m.flushMu.Lock()
	defer m.flushMu.Unlock()

	m.mu.Lock()
	batch := m.buffer
	m.buffer = nil
	m.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	err := dbopen.RunTx(ctx, m.cfg.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			`INSERT INTO metrics_timeseries (metric_name, timestamp, value, labels, unit) VALUES (?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		defer stmt.Close()
		for _, p := range batch {
			var labels sql.NullString
			if len(p.Labels) > 0 {
				if b, err := json.Marshal(p.Labels); err == nil {
					labels = sql.NullString{String: string(b), Valid: true}
				}
			}
			if _, err := stmt.ExecContext(ctx, p.Name, p.Timestamp.Unix(), p.Value, labels, p.Unit); err != nil {
				return fmt.Errorf("insert %s: %w", p.Name, err)
			}
		}
		return nil
	})
	if err != nil {
		m.logger.Error("observability: metrics flush failed", "error", err, "points", len(batch))
	}
}

// Query reads persisted datapoints, newest first. An empty name matches all.
func (m *Metrics) Query(ctx context.Context, name string, limit int) ([]Metric, error) {
	if m.cfg.DB == nil {
		return nil, nil
	}
	q := "SELECT metric_name, timestamp, value, labels, unit FROM metrics_timeseries"
	var args []any
	if name != "" {
		q += " WHERE metric_name = ?"
		args = append(args, name)
	}
	q += " ORDER BY timestamp DESC"
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := m.cfg.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query metrics: %w", err)
	}
	defer rows.Close()

	var out []Metric
	for rows.Next() {
		var p Metric
		var ts int64
		var labels, unit sql.NullString
		if err := rows.Scan(&p.Name, &ts, &p.Value, &labels, &unit); err != nil {
			return nil, fmt.Errorf("scan metric: %w", err)
		}
		p.Timestamp = time.Unix(ts, 0)
		p.Unit = unit.String
		if labels.Valid {
			json.Unmarshal([]byte(labels.String), &p.Labels)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Close flushes what is buffered and stops the flush loop.
func (m *Metrics) Close() error {
	m.closeOnce.Do(func() {
		close(m.stop)
		<-m.done
		m.Flush()
	})
	return nil
}

func (m *Metrics) flushLoop() {
	defer close(m.done)
	ticker := time.NewTicker(m.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.Flush()
		}
	}
}
