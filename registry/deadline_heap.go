package registry

import (
	"container/heap"
	"time"
)

// deadlineEntry is one scheduled expiry: a binary heap ordered by priority
// (here, deadline) fused with a map for O(1) lookup by key (here, a
// monotonic seq assigned at registration), so removal is O(log n) instead
// of an O(n) scan.
// completion is carried alongside so an expiry scan can validate it still
// owns the slot before evicting it (a key can be reused by a fresh
// registration after the original completion already resolved normally).
type deadlineEntry struct {
	seq        uint64
	key        RequestKey
	kind       Kind
	completion *Completion
	deadline   time.Time
	index      int
}

// deadlineHeap is a min-heap of deadlineEntry ordered by deadline, with
// O(log n) removal by seq. Not safe for concurrent use on its own; the
// Registry guards it with a mutex.
type deadlineHeap struct {
	items   []*deadlineEntry
	bySeq   map[uint64]*deadlineEntry
	nextSeq uint64
}

func newDeadlineHeap() *deadlineHeap {
	return &deadlineHeap{
		items: make([]*deadlineEntry, 0),
		bySeq: make(map[uint64]*deadlineEntry),
	}
}

// heap.Interface

func (h *deadlineHeap) Len() int { return len(h.items) }

func (h *deadlineHeap) Less(i, j int) bool {
	return h.items[i].deadline.Before(h.items[j].deadline)
}

func (h *deadlineHeap) Swap(i, j int) {
	h.items[i], h.items[j] = h.items[j], h.items[i]
	h.items[i].index = i
	h.items[j].index = j
}

func (h *deadlineHeap) Push(x interface{}) {
	e := x.(*deadlineEntry)
	e.index = len(h.items)
	h.items = append(h.items, e)
}

func (h *deadlineHeap) Pop() interface{} {
	old := h.items
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	h.items = old[:n-1]
	return e
}

// schedule adds a new deadline entry and returns its seq, used by the
// Registry to stamp Completion.seq for later removal.
func (h *deadlineHeap) schedule(key RequestKey, kind Kind, c *Completion) uint64 {
	h.nextSeq++
	seq := h.nextSeq
	e := &deadlineEntry{seq: seq, key: key, kind: kind, completion: c, deadline: c.Deadline}
	heap.Push(h, e)
	h.bySeq[seq] = e
	return seq
}

// remove removes the entry for seq, if still present. A missing seq is not
// an error: it means the entry was already popped by expired() (or never
// scheduled), which the Registry's take/drain paths must tolerate.
func (h *deadlineHeap) remove(seq uint64) {
	e, ok := h.bySeq[seq]
	if !ok {
		return
	}
	delete(h.bySeq, seq)
	if e.index >= 0 {
		heap.Remove(h, e.index)
	}
}

// expired pops every entry whose deadline is <= now, returning them in
// deadline order.
func (h *deadlineHeap) expired(now time.Time) []*deadlineEntry {
	var out []*deadlineEntry
	for h.Len() > 0 && !h.items[0].deadline.After(now) {
		e := heap.Pop(h).(*deadlineEntry)
		delete(h.bySeq, e.seq)
		out = append(out, e)
	}
	return out
}
