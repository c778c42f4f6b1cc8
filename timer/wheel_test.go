package timer

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestWheelFiresRegisteredFuncs(t *testing.T) {
	w := NewWheel(5*time.Millisecond, 4)
	var calls int64
	w.Register(func(now time.Time) { atomic.AddInt64(&calls, 1) })
	w.Start()
	defer w.Stop()

	deadline := time.After(500 * time.Millisecond)
	for atomic.LoadInt64(&calls) == 0 {
		select {
		case <-deadline:
			t.Fatal("reap func never fired")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestWheelCancelStopsFutureCalls(t *testing.T) {
	w := NewWheel(5*time.Millisecond, 1)
	var calls int64
	cancel := w.Register(func(now time.Time) { atomic.AddInt64(&calls, 1) })
	w.Start()
	defer w.Stop()

	time.Sleep(30 * time.Millisecond)
	cancel()
	seen := atomic.LoadInt64(&calls)
	time.Sleep(30 * time.Millisecond)
	if atomic.LoadInt64(&calls) > seen+1 {
		t.Fatalf("expected calls to stop after cancel, got %d -> %d", seen, atomic.LoadInt64(&calls))
	}
}

func TestWheelStopIsIdempotent(t *testing.T) {
	w := NewWheel(time.Millisecond, 1)
	w.Start()
	w.Stop()
	w.Stop()
}

func TestWheelSpreadsAcrossBuckets(t *testing.T) {
	w := NewWheel(5*time.Millisecond, 3)
	var counts [3]int64
	for i := 0; i < 3; i++ {
		i := i
		w.Register(func(now time.Time) { atomic.AddInt64(&counts[i], 1) })
	}
	w.Start()
	defer w.Stop()

	time.Sleep(60 * time.Millisecond)
	for i := range counts {
		if atomic.LoadInt64(&counts[i]) == 0 {
			t.Fatalf("bucket %d never fired", i)
		}
	}
}
