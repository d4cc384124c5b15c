package progress

import (
	"context"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEstimator_CapsBelowHundred(t *testing.T) {
	// WHAT: Ticking never passes the ceiling before Finish.
	// WHY: 100 is reserved for the real response.
	e := New(Config{Interval: time.Millisecond, MaxStep: 30, IntN: func(n int) int { return n - 1 }})
	e.Start()
	defer e.Stop()

	waitFor(t, func() bool { return e.Value() == 95 })
	time.Sleep(10 * time.Millisecond)
	if v := e.Value(); v != 95 {
		t.Fatalf("value = %d, want 95", v)
	}
}

func TestEstimator_Monotonic(t *testing.T) {
	e := New(Config{Interval: time.Millisecond})
	e.Start()
	defer e.Stop()
	prev := 0
	for i := 0; i < 50; i++ {
		v := e.Value()
		if v < prev {
			t.Fatalf("value decreased: %d -> %d", prev, v)
		}
		prev = v
		time.Sleep(time.Millisecond)
	}
}

func TestEstimator_StopFreezes(t *testing.T) {
	// WHAT: After Stop the ticker goroutine is gone and the value is frozen.
	// WHY: A dangling timer is a leak.
	e := New(Config{Interval: time.Millisecond, IntN: func(int) int { return 0 }})
	e.Start()
	waitFor(t, func() bool { return e.Value() > 0 })
	e.Stop()
	e.Stop()

	if e.Running() {
		t.Fatal("still running after Stop")
	}
	v := e.Value()
	time.Sleep(10 * time.Millisecond)
	if e.Value() != v {
		t.Fatalf("value moved after Stop: %d -> %d", v, e.Value())
	}
}

func TestEstimator_FinishJumpsToHundred(t *testing.T) {
	e := New(Config{Interval: time.Hour, Hold: -1})
	e.Start()
	e.Finish(context.Background())
	if e.Value() != 100 {
		t.Fatalf("value = %d", e.Value())
	}
	if e.Running() {
		t.Fatal("ticker still running after Finish")
	}
}

func TestEstimator_FinishHoldRespectsContext(t *testing.T) {
	e := New(Config{Hold: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	start := time.Now()
	e.Finish(ctx)
	if time.Since(start) > time.Second {
		t.Fatal("Finish ignored cancelled context")
	}
}

func TestEstimator_Reset(t *testing.T) {
	e := New(Config{Interval: time.Millisecond})
	e.Start()
	waitFor(t, func() bool { return e.Value() > 0 })
	e.Reset()
	if e.Value() != 0 || e.Running() {
		t.Fatalf("after Reset: value=%d running=%v", e.Value(), e.Running())
	}
}

func TestStage(t *testing.T) {
	cases := map[int]string{0: "Uploading...", 29: "Uploading...", 30: "Processing with AI...", 70: "Finalizing...", 100: "Finalizing..."}
	for pct, want := range cases {
		if got := Stage(pct); got != want {
			t.Errorf("Stage(%d) = %q, want %q", pct, got, want)
		}
	}
}
