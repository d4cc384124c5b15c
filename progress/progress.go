// Package progress provides the synthetic progress estimate shown while a
// remote AI call is in flight. The remote API reports no progress, so the
// estimate climbs by a bounded random step on a fixed tick and parks below
// 100 until the real answer arrives. It is cosmetic: callers never gate on it.
package progress

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"
)

// Config tunes an Estimator.
type Config struct {
	// Interval between ticks (default: 500ms).
	Interval time.Duration `json:"interval" yaml:"interval"`

	// MaxStep is the largest increment per tick (default: 10). Each tick adds
	// a value in [1, MaxStep].
	MaxStep int `json:"max_step" yaml:"max_step"`

	// Ceiling caps the estimate until Finish (default: 95).
	Ceiling int `json:"ceiling" yaml:"ceiling"`

	// Hold is how long Finish keeps 100 visible (default: 500ms).
	Hold time.Duration `json:"hold" yaml:"hold"`

	// IntN returns a value in [0, n). Defaults to math/rand/v2.
	IntN func(n int) int `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Interval <= 0 {
		c.Interval = 500 * time.Millisecond
	}
	if c.MaxStep <= 0 {
		c.MaxStep = 10
	}
	if c.Ceiling <= 0 || c.Ceiling >= 100 {
		c.Ceiling = 95
	}
	if c.Hold < 0 {
		c.Hold = 0
	} else if c.Hold == 0 {
		c.Hold = 500 * time.Millisecond
	}
	if c.IntN == nil {
		c.IntN = rand.IntN
	}
}

// Estimator is one progress estimate. The zero value is not usable; call New.
type Estimator struct {
	cfg Config

	mu      sync.Mutex
	value   int
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// New creates an idle estimator at 0.
func New(cfg Config) *Estimator {
	cfg.defaults()
	return &Estimator{cfg: cfg}
}

// Start begins ticking. Calling Start on a running estimator is a no-op.
func (e *Estimator) Start() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return
	}
	e.running = true
	e.stop = make(chan struct{})
	e.done = make(chan struct{})
	go e.loop(e.stop, e.done)
}

func (e *Estimator) loop(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(e.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			e.tick()
		}
	}
}

func (e *Estimator) tick() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.value >= e.cfg.Ceiling {
		return
	}
	e.value += 1 + e.cfg.IntN(e.cfg.MaxStep)
	if e.value > e.cfg.Ceiling {
		e.value = e.cfg.Ceiling
	}
}

// Stop cancels the ticker and waits for it to exit. The value is kept.
// Safe to call any number of times.
func (e *Estimator) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	stop, done := e.stop, e.done
	e.mu.Unlock()

	close(stop)
	<-done
}

// Finish stops the ticker, jumps to 100 and holds for Config.Hold or until
// ctx is done.
func (e *Estimator) Finish(ctx context.Context) {
	e.Stop()
	e.mu.Lock()
	e.value = 100
	e.mu.Unlock()

	t := time.NewTimer(e.cfg.Hold)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// Reset stops the ticker and returns the value to 0.
func (e *Estimator) Reset() {
	e.Stop()
	e.mu.Lock()
	e.value = 0
	e.mu.Unlock()
}

// Value is the current percentage.
func (e *Estimator) Value() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.value
}

// Running reports whether the ticker is active.
func (e *Estimator) Running() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Stage labels a percentage for display.
func Stage(pct int) string {
	switch {
	case pct < 30:
		return "Uploading..."
	case pct < 70:
		return "Processing with AI..."
	default:
		return "Finalizing..."
	}
}
