package registry

import (
	"sync"
	"time"

	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/logging"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// readQueue holds the read completions pending for one key, in submission
// order. A key can have any number of outstanding reads (BookKeeper allows
// concurrent reads of the same entry); adds cannot.
type readQueue struct {
	mu    sync.Mutex
	items []*Completion
}

func (q *readQueue) append(c *Completion) {
	q.mu.Lock()
	q.items = append(q.items, c)
	q.mu.Unlock()
}

// takeHead pops the first item, if any.
func (q *readQueue) takeHead() (*Completion, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil, false
	}
	c := q.items[0]
	q.items = q.items[1:]
	return c, true
}

// removeIfPresent splices out target wherever it sits in the queue, used by
// deadline expiry to evict a read that isn't necessarily at the head.
func (q *readQueue) removeIfPresent(target *Completion) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, c := range q.items {
		if c == target {
			q.items = append(q.items[:i:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

func (q *readQueue) drain() []*Completion {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Registry is the per-connection Completion Registry: an add table (unique
// per key), a read table (ordered queue per key), and a shared deadline
// index used by timeout scans. Safe for concurrent use.
type Registry struct {
	addTable  *xsync.MapOf[RequestKey, *Completion]
	readTable *xsync.MapOf[RequestKey, *readQueue]

	heapMu sync.Mutex
	heap   *deadlineHeap

	name string
	log  logger.ILogger
}

// New builds an empty Registry. name identifies the owning connection in
// log output (e.g. its remote address).
func New(name string) *Registry {
	return &Registry{
		addTable:  xsync.NewMapOf[RequestKey, *Completion](),
		readTable: xsync.NewMapOf[RequestKey, *readQueue](),
		heap:      newDeadlineHeap(),
		name:      name,
		log:       logging.Get("registry"),
	}
}

// RegisterAdd registers c as the pending add for key. BookKeeper's server
// contract guarantees at most one in-flight add per (ledger, entry); if a
// caller violates that, the previous completion is overwritten and
// abandoned: it is never resolved, not even by DrainExpired or DrainAll.
// The collision is loudly logged since it almost always indicates a client
// bug.
func (r *Registry) RegisterAdd(key RequestKey, c *Completion) {
	r.heapMu.Lock()
	c.seq = r.heap.schedule(key, KindAdd, c)
	r.heapMu.Unlock()

	if prev, loaded := r.addTable.Load(key); loaded {
		r.log.Warningf("%s: overwriting in-flight add completion for %+v (submitted %s ago)", r.name, key, time.Since(prev.SubmittedAt))
	}
	r.addTable.Store(key, c)
}

// RegisterRead appends c to the read queue for key.
func (r *Registry) RegisterRead(key RequestKey, c *Completion) {
	r.heapMu.Lock()
	c.seq = r.heap.schedule(key, KindRead, c)
	r.heapMu.Unlock()

	q, _ := r.readTable.LoadOrCompute(key, func() *readQueue { return &readQueue{} })
	q.append(c)
}

// TakeAdd removes and returns the pending add completion for key, if any.
func (r *Registry) TakeAdd(key RequestKey) (*Completion, bool) {
	c, loaded := r.addTable.LoadAndDelete(key)
	if !loaded {
		return nil, false
	}
	r.heapMu.Lock()
	r.heap.remove(c.seq)
	r.heapMu.Unlock()
	return c, true
}

// TakeRead removes and returns the oldest pending read completion for key,
// if any.
func (r *Registry) TakeRead(key RequestKey) (*Completion, bool) {
	q, loaded := r.readTable.Load(key)
	if !loaded {
		return nil, false
	}
	c, ok := q.takeHead()
	if !ok {
		return nil, false
	}
	r.heapMu.Lock()
	r.heap.remove(c.seq)
	r.heapMu.Unlock()
	return c, true
}

// DrainExpired evicts every completion whose deadline is <= now and returns
// them for the caller to resolve (conn resolves them with
// errs.ServerUnavailable). A completion already taken through the normal
// response path is skipped: its table slot may since have been reused by a
// fresh registration at the same key, which must not be disturbed.
func (r *Registry) DrainExpired(now time.Time) []*Completion {
	r.heapMu.Lock()
	entries := r.heap.expired(now)
	r.heapMu.Unlock()

	if len(entries) == 0 {
		return nil
	}

	out := make([]*Completion, 0, len(entries))
	for _, e := range entries {
		switch e.kind {
		case KindAdd:
			var evicted bool
			r.addTable.Compute(e.key, func(cur *Completion, loaded bool) (*Completion, bool) {
				if loaded && cur == e.completion {
					evicted = true
					return nil, true
				}
				return cur, !loaded
			})
			if evicted {
				out = append(out, e.completion)
			}
		case KindRead:
			if q, loaded := r.readTable.Load(e.key); loaded && q.removeIfPresent(e.completion) {
				out = append(out, e.completion)
			}
		}
	}
	return out
}

// DrainAll empties every table of the given kind and returns the
// completions found, used on disconnect and close to fail everything
// outstanding rather than leave callers hanging.
func (r *Registry) DrainAll(kind Kind) []*Completion {
	var out []*Completion

	switch kind {
	case KindAdd:
		r.addTable.Range(func(key RequestKey, c *Completion) bool {
			if cur, loaded := r.addTable.LoadAndDelete(key); loaded {
				out = append(out, cur)
			}
			return true
		})
	case KindRead:
		r.readTable.Range(func(key RequestKey, q *readQueue) bool {
			out = append(out, q.drain()...)
			return true
		})
	}

	if len(out) > 0 {
		r.heapMu.Lock()
		for _, c := range out {
			r.heap.remove(c.seq)
		}
		r.heapMu.Unlock()
	}
	return out
}

// FailAll drains both tables and resolves every completion with code,
// synchronously on the calling goroutine. Callers that need resolution to
// go through an ordered executor (any path a user callback can reach)
// should drain via DrainAll and dispatch each completion themselves instead.
func (r *Registry) FailAll(code errs.Code) {
	for _, c := range r.DrainAll(KindAdd) {
		c.Resolve(code, nil)
	}
	for _, c := range r.DrainAll(KindRead) {
		c.Resolve(code, nil)
	}
}
