package registry

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/wire"
)

func newTestCompletion(t *testing.T, key RequestKey, kind Kind, deadline time.Time, fired *int32) *Completion {
	t.Helper()
	return NewCompletion(key, kind, deadline, func(code errs.Code, payload []byte) {
		atomic.AddInt32(fired, 1)
	})
}

func TestTakeAddIsExactlyOnce(t *testing.T) {
	r := New("test")
	key := RequestKey{Ledger: 1, Entry: 1}
	var fired int32
	c := newTestCompletion(t, key, KindAdd, time.Now().Add(time.Minute), &fired)
	r.RegisterAdd(key, c)

	got, ok := r.TakeAdd(key)
	if !ok || got != c {
		t.Fatalf("expected to take the registered completion")
	}
	if _, ok := r.TakeAdd(key); ok {
		t.Fatalf("expected second take to fail")
	}
}

func TestRegisterAddOverwritesAndLogsCollision(t *testing.T) {
	r := New("test")
	key := RequestKey{Ledger: 1, Entry: 2}
	var fired1, fired2 int32
	c1 := newTestCompletion(t, key, KindAdd, time.Now().Add(time.Minute), &fired1)
	c2 := newTestCompletion(t, key, KindAdd, time.Now().Add(time.Minute), &fired2)

	r.RegisterAdd(key, c1)
	r.RegisterAdd(key, c2)

	got, ok := r.TakeAdd(key)
	if !ok || got != c2 {
		t.Fatalf("expected the second registration to win the slot")
	}
}

func TestReadQueueIsFIFO(t *testing.T) {
	r := New("test")
	key := RequestKey{Ledger: 5, Entry: 9}
	var fired int32
	c1 := newTestCompletion(t, key, KindRead, time.Now().Add(time.Minute), &fired)
	c2 := newTestCompletion(t, key, KindRead, time.Now().Add(time.Minute), &fired)
	c3 := newTestCompletion(t, key, KindRead, time.Now().Add(time.Minute), &fired)

	r.RegisterRead(key, c1)
	r.RegisterRead(key, c2)
	r.RegisterRead(key, c3)

	for _, want := range []*Completion{c1, c2, c3} {
		got, ok := r.TakeRead(key)
		if !ok || got != want {
			t.Fatalf("expected FIFO order")
		}
	}
	if _, ok := r.TakeRead(key); ok {
		t.Fatalf("expected empty queue after draining")
	}
}

func TestDrainExpiredResolvesOnlyStaleEntries(t *testing.T) {
	r := New("test")
	key1 := RequestKey{Ledger: 1, Entry: 1}
	key2 := RequestKey{Ledger: 1, Entry: 2}

	var fired int32
	past := time.Now().Add(-time.Second)
	future := time.Now().Add(time.Hour)

	expiredC := newTestCompletion(t, key1, KindAdd, past, &fired)
	freshC := newTestCompletion(t, key2, KindAdd, future, &fired)

	r.RegisterAdd(key1, expiredC)
	r.RegisterAdd(key2, freshC)

	expired := r.DrainExpired(time.Now())
	if len(expired) != 1 || expired[0] != expiredC {
		t.Fatalf("expected exactly the expired completion, got %v", expired)
	}

	if _, ok := r.TakeAdd(key2); !ok {
		t.Fatalf("fresh completion should still be registered")
	}
}

func TestDrainExpiredIgnoresReplacedKey(t *testing.T) {
	r := New("test")
	key := RequestKey{Ledger: 3, Entry: 3}
	var fired int32
	past := time.Now().Add(-time.Second)

	stale := newTestCompletion(t, key, KindAdd, past, &fired)
	r.RegisterAdd(key, stale)

	// The response path takes it before the reaper runs.
	if _, ok := r.TakeAdd(key); !ok {
		t.Fatalf("expected to take stale completion")
	}

	fresh := newTestCompletion(t, key, KindAdd, time.Now().Add(time.Hour), &fired)
	r.RegisterAdd(key, fresh)

	expired := r.DrainExpired(time.Now())
	for _, c := range expired {
		if c == fresh {
			t.Fatalf("fresh registration must not be evicted by a stale deadline entry")
		}
	}
	if _, ok := r.TakeAdd(key); !ok {
		t.Fatalf("fresh completion should remain registered")
	}
}

func TestTakeAddRacingDrainExpiredResolvesExactlyOnce(t *testing.T) {
	r := New("test")
	key := RequestKey{Ledger: 9, Entry: 9}
	const n = 500

	for i := 0; i < n; i++ {
		var fired int32
		past := time.Now().Add(-time.Second)
		c := newTestCompletion(t, key, KindAdd, past, &fired)
		r.RegisterAdd(key, c)

		var wg sync.WaitGroup
		var takeOK, drainOK int32
		wg.Add(2)
		go func() {
			defer wg.Done()
			if taken, ok := r.TakeAdd(key); ok {
				atomic.AddInt32(&takeOK, 1)
				taken.Resolve(errs.OK, nil)
			}
		}()
		go func() {
			defer wg.Done()
			if expired := r.DrainExpired(time.Now()); len(expired) == 1 {
				atomic.AddInt32(&drainOK, 1)
				expired[0].Resolve(errs.Interrupted, nil)
			}
		}()
		wg.Wait()

		if takeOK+drainOK != 1 {
			t.Fatalf("iteration %d: expected exactly one winner between TakeAdd and DrainExpired, got take=%d drain=%d", i, takeOK, drainOK)
		}
		if got := atomic.LoadInt32(&fired); got != 1 {
			t.Fatalf("iteration %d: expected completion resolved exactly once, fired %d times", i, got)
		}
	}
}

func TestFailAllResolvesEverythingExactlyOnce(t *testing.T) {
	r := New("test")
	var fired int32
	const n = 50

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		i := i
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.RegisterAdd(RequestKey{Ledger: 1, Entry: wire.EntryID(i)}, newTestCompletion(t, RequestKey{Ledger: 1, Entry: wire.EntryID(i)}, KindAdd, time.Now().Add(time.Minute), &fired))
		}()
		go func() {
			defer wg.Done()
			r.RegisterRead(RequestKey{Ledger: 2, Entry: wire.EntryID(i)}, newTestCompletion(t, RequestKey{Ledger: 2, Entry: wire.EntryID(i)}, KindRead, time.Now().Add(time.Minute), &fired))
		}()
	}
	wg.Wait()

	r.FailAll(errs.ClientClosed)

	if got := atomic.LoadInt32(&fired); got != 2*n {
		t.Fatalf("expected %d completions fired, got %d", 2*n, got)
	}
}
