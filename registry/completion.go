package registry

import (
	"time"

	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/wire"
)

// RequestKey correlates a response to the request that caused it.
type RequestKey struct {
	Ledger wire.LedgerID
	Entry  wire.EntryID
}

// Kind distinguishes the two completion tables.
type Kind int

const (
	KindAdd Kind = iota
	KindRead
)

// Completion is a pending operation awaiting resolution. resolve is the
// idiomatic-Go stand-in for the "nested callback object" the source
// language uses: a closure over the caller's typed WriteCallback or
// ReadCallback plus its opaque context, built by the conn package at
// registration time.
type Completion struct {
	Key         RequestKey
	Kind        Kind
	SubmittedAt time.Time
	Deadline    time.Time

	resolve func(code errs.Code, payload []byte)

	seq uint64 // deadline-heap bookkeeping, set by the registry on register
}

// NewCompletion builds a Completion ready to register. resolve is invoked
// exactly once, by whichever component (conn's response dispatch, timeout
// scan, disconnect drain, or close drain) resolves it first.
func NewCompletion(key RequestKey, kind Kind, deadline time.Time, resolve func(errs.Code, []byte)) *Completion {
	return &Completion{
		Key:         key,
		Kind:        kind,
		SubmittedAt: time.Now(),
		Deadline:    deadline,
		resolve:     resolve,
	}
}

// Resolve fires the completion's callback. Callers must ensure this is
// invoked at most once per Completion (the registry's take/drain
// operations guarantee a Completion is handed out at most once).
func (c *Completion) Resolve(code errs.Code, payload []byte) {
	c.resolve(code, payload)
}
