package client

import (
	"sync"
	"time"

	"github.com/kolbv/ledgerclient/conn"
	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/logging"
	"github.com/kolbv/ledgerclient/ordered"
	"github.com/kolbv/ledgerclient/pool"
	"github.com/kolbv/ledgerclient/timer"
	"github.com/kolbv/ledgerclient/wire"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

// Client is the Client Facade (CF): the top-level object applications use.
// It owns the address-to-pool map and the shared infrastructure every pool
// and PCC draws on, and exposes the four ledger operations plus lifecycle
// control. Safe for concurrent use.
type Client struct {
	cfg Config
	log logger.ILogger

	pools    *xsync.MapOf[string, *pool.Pool]
	executor *ordered.Executor
	wheel    *timer.Wheel

	closedMu sync.RWMutex
	closed   bool
}

// New builds a Client from cfg (zero-valued fields fall back to
// DefaultConfig) and starts its shared timer wheel.
func New(cfg Config) *Client {
	cfg = cfg.withDefaults()
	c := &Client{
		cfg:      cfg,
		log:      logging.Get("client"),
		pools:    xsync.NewMapOf[string, *pool.Pool](),
		executor: ordered.NewExecutor(cfg.WorkerCount),
		wheel:    timer.NewWheel(cfg.TickDuration, cfg.TickCount),
	}
	c.wheel.Start()
	return c
}

// poolFor returns the pool for addr, building and publishing one if absent.
// Returns nil if the facade is already closed.
func (c *Client) poolFor(addr wire.ServerAddress) *pool.Pool {
	key := addr.String()
	if p, ok := c.pools.Load(key); ok {
		return p
	}

	c.closedMu.RLock()
	defer c.closedMu.RUnlock()
	if c.closed {
		return nil
	}

	shell := pool.New(pool.Config{
		Addr:                 addr,
		ConnectionsPerServer: c.cfg.ConnectionsPerServer,
		PCC: conn.Config{
			TickDuration:   c.cfg.TickDuration,
			OpTimeout:      c.cfg.OpTimeout,
			AuthTimeout:    c.cfg.AuthTimeout,
			TCPNoDelay:     c.cfg.TCPNoDelay,
			MaxFrameLength: c.cfg.MaxFrameLength,
		},
		AuthFactory: c.cfg.AuthFactory,
		Executor:    c.executor,
		Stats:       c.cfg.Stats,
		Gauges:      c.cfg.Gauges,
	})

	actual, loaded := c.pools.LoadOrStore(key, shell)
	if loaded {
		// Someone else won the race; discard shell without initializing it.
		return actual
	}

	shell.Init()
	for _, pcc := range shell.PCCs() {
		pcc := pcc
		c.wheel.Register(func(now time.Time) { pcc.ReapExpired(now) })
	}
	return shell
}

// AddEntry submits an ADD_ENTRY to addr, routed by ledger id so repeated
// operations on the same ledger land on the same underlying connection.
func (c *Client) AddEntry(addr wire.ServerAddress, ledger wire.LedgerID, masterKey []byte, entry wire.EntryID, payload []byte, cb conn.WriteCallback, ctx interface{}) {
	pcc, err := c.pick(addr, ledger)
	if pcc == nil {
		c.submitFailure(ledger, func() { cb(c.shapeError(err), ledger, entry, addr, ctx) })
		return
	}
	pcc.EnqueueOrDispatch(ledger, func(code errs.Code) {
		if code != errs.OK {
			c.submitFailure(ledger, func() { cb(c.shapeError(code), ledger, entry, addr, ctx) })
			return
		}
		pcc.AddEntry(ledger, masterKey, entry, payload, func(code errs.Code, l wire.LedgerID, e wire.EntryID, a wire.ServerAddress, ctx interface{}) {
			cb(c.shapeError(code), l, e, a, ctx)
		}, ctx)
	})
}

// ReadEntry submits a READ_ENTRY to addr. entry may be wire.LastAddConfirmed.
func (c *Client) ReadEntry(addr wire.ServerAddress, ledger wire.LedgerID, entry wire.EntryID, cb conn.ReadCallback, ctx interface{}) {
	pcc, err := c.pick(addr, ledger)
	if pcc == nil {
		c.submitFailure(ledger, func() { cb(c.shapeError(err), ledger, entry, nil, ctx) })
		return
	}
	pcc.EnqueueOrDispatch(ledger, func(code errs.Code) {
		if code != errs.OK {
			c.submitFailure(ledger, func() { cb(c.shapeError(code), ledger, entry, nil, ctx) })
			return
		}
		pcc.ReadEntry(ledger, entry, func(code errs.Code, l wire.LedgerID, e wire.EntryID, payload []byte, ctx interface{}) {
			cb(c.shapeError(code), l, e, payload, ctx)
		}, ctx)
	})
}

// ReadEntryAndFence submits a fencing READ_ENTRY to addr.
func (c *Client) ReadEntryAndFence(addr wire.ServerAddress, ledger wire.LedgerID, masterKey []byte, entry wire.EntryID, cb conn.ReadCallback, ctx interface{}) {
	pcc, err := c.pick(addr, ledger)
	if pcc == nil {
		c.submitFailure(ledger, func() { cb(c.shapeError(err), ledger, entry, nil, ctx) })
		return
	}
	pcc.EnqueueOrDispatch(ledger, func(code errs.Code) {
		if code != errs.OK {
			c.submitFailure(ledger, func() { cb(c.shapeError(code), ledger, entry, nil, ctx) })
			return
		}
		pcc.ReadEntryAndFence(ledger, masterKey, entry, func(code errs.Code, l wire.LedgerID, e wire.EntryID, payload []byte, ctx interface{}) {
			cb(c.shapeError(code), l, e, payload, ctx)
		}, ctx)
	})
}

// pick resolves addr to a pool (building one if absent) and picks the PCC
// routed by ledger. Returns a nil PCC and the code to fail with if the
// facade is closed or the pool unexpectedly holds no connections yet.
func (c *Client) pick(addr wire.ServerAddress, ledger wire.LedgerID) (*conn.PCC, errs.Code) {
	p := c.poolFor(addr)
	if p == nil {
		return nil, errs.ClientClosed
	}
	pcc := p.Pick(uint64(ledger))
	if pcc == nil {
		return nil, errs.ServerUnavailable
	}
	return pcc, errs.OK
}

// submitFailure runs fn on the ordered executor, keyed by ledger so it
// serializes with any response callback in flight for the same ledger,
// instead of firing directly on whatever goroutine rejected the op. If the
// executor is already closed there is nothing left to serialize through,
// so fn runs inline rather than being dropped.
func (c *Client) submitFailure(ledger wire.LedgerID, fn func()) {
	if err := c.executor.Submit(uint64(ledger), fn); err != nil {
		fn()
	}
}

func (c *Client) shapeError(code errs.Code) errs.Code {
	if code == errs.OK {
		return code
	}
	c.closedMu.RLock()
	closed := c.closed
	c.closedMu.RUnlock()
	if closed {
		return errs.ClientClosed
	}
	return code
}

// ClosePeers forces a transient disconnect of every listed address's pool,
// so the next operation against it reconnects from scratch.
func (c *Client) ClosePeers(addrs []wire.ServerAddress) {
	for _, a := range addrs {
		if p, ok := c.pools.Load(a.String()); ok {
			p.Disconnect()
		}
	}
}

// Close permanently shuts down the facade: every pool is closed, the timer
// wheel and ordered executor stop, and any future operation fails with
// errs.ClientClosed.
func (c *Client) Close() {
	c.closedMu.Lock()
	if c.closed {
		c.closedMu.Unlock()
		return
	}
	c.closed = true
	c.closedMu.Unlock()

	c.pools.Range(func(key string, p *pool.Pool) bool {
		p.Close()
		return true
	})
	c.wheel.Stop()
	c.executor.Close()
}
