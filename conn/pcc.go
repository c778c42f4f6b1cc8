package conn

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kolbv/ledgerclient/auth"
	"github.com/kolbv/ledgerclient/errs"
	"github.com/kolbv/ledgerclient/logging"
	"github.com/kolbv/ledgerclient/ordered"
	"github.com/kolbv/ledgerclient/registry"
	"github.com/kolbv/ledgerclient/stats"
	"github.com/kolbv/ledgerclient/wire"
	"github.com/lni/dragonboat/v4/logger"
)

var errNotConnected = errors.New("conn: not connected")

// PendingOp is a deferred invocation queued while a PCC is not yet
// CONNECTED. It fires with errs.OK once the connection is ready (at which
// point it performs the actual network write) or with a failure code if
// the connection attempt or auth handshake failed.
type PendingOp func(code errs.Code)

// queuedOp pairs a PendingOp with the ledger id its caller is operating on,
// so a later failure (teardown, close) can hand it to the ordered executor
// keyed the same way a response for that ledger would be.
type queuedOp struct {
	ledger wire.LedgerID
	run    PendingOp
}

// WriteCallback reports the outcome of an AddEntry.
type WriteCallback func(code errs.Code, ledger wire.LedgerID, entry wire.EntryID, addr wire.ServerAddress, ctx interface{})

// ReadCallback reports the outcome of a ReadEntry/ReadEntryAndFence. payload
// is nil on a non-OK code, and its backing array is not retained past the
// callback: copy it before returning if it must outlive the call.
type ReadCallback func(code errs.Code, ledger wire.LedgerID, entry wire.EntryID, payload []byte, ctx interface{})

// Config parameterizes a PCC. All fields are required unless noted.
type Config struct {
	Addr wire.ServerAddress

	// Dialer builds the TCP connection; defaults to &net.Dialer{} if nil.
	Dialer *net.Dialer

	// TickDuration is the wire protocol's "client tick duration": the read
	// loop's per-iteration read deadline, and thus the interval at which
	// this connection's timeout scans run.
	TickDuration time.Duration
	// OpTimeout is the wire protocol's "read timeout": the deadline window
	// given to each submitted op's Completion, from submission to when a
	// tick's DrainExpired scan is allowed to fail it. Defaults to
	// TickDuration*3 if unset.
	OpTimeout time.Duration
	// AuthTimeout bounds how long AUTHENTICATING may last before the
	// handshake fails with errs.AuthTimeout.
	AuthTimeout time.Duration

	TCPNoDelay     bool
	MaxFrameLength int

	AuthFactory auth.ProviderFactory
	Executor    *ordered.Executor
	Stats       stats.Sink
	Gauges      *stats.TopologyGauges
	// ConnIndex identifies this PCC's slot within its parent pool, used
	// only to label topology gauges.
	ConnIndex int
}

func (c Config) dialer() *net.Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return &net.Dialer{}
}

func (c Config) maxFrameLength() int {
	if c.MaxFrameLength > 0 {
		return c.MaxFrameLength
	}
	return wire.DefaultMaxFrameLength
}

func (c Config) stats() stats.Sink {
	if c.Stats != nil {
		return c.Stats
	}
	return stats.NoopSink{}
}

// PCC is a Per-Connection Client: one instance per TCP connection to one
// server. Owns the connection-state machine, the operation queue accrued
// while connecting/authenticating, and a per-connection completion
// registry. Safe for concurrent use.
type PCC struct {
	cfg Config
	log logger.ILogger
	reg *registry.Registry

	state atomic.Int32 // conn.State, read lock-free on the EnqueueOrDispatch fast path

	mu             sync.Mutex // guards the fields below
	netConn        net.Conn
	connGeneration uint64
	pendingOps     []queuedOp
	authProvider   auth.Provider
	authStartTime  time.Time

	writeMu   sync.Mutex // serializes frame writes on netConn
	closeOnce sync.Once
}

// New builds a PCC in the DISCONNECTED state. No network activity occurs
// until the first EnqueueOrDispatch.
func New(cfg Config) *PCC {
	p := &PCC{
		cfg: cfg,
		log: logging.Get("conn"),
		reg: registry.New(cfg.Addr.String()),
	}
	p.state.Store(int32(StateDisconnected))
	return p
}

// State returns the current connection state.
func (p *PCC) State() State { return State(p.state.Load()) }

// EnqueueOrDispatch is the PCC's single entry point for every operation,
// keyed by ledger so a failure routed through the ordered executor lands on
// the same worker as any response already in flight for that ledger. On
// CONNECTED it fires op(OK) immediately; on CLOSED it dispatches
// op(ServerUnavailable) through the ordered executor; otherwise it queues op
// to run once the connection resolves, kicking off a connect if this is the
// first op since DISCONNECTED.
func (p *PCC) EnqueueOrDispatch(ledger wire.LedgerID, op PendingOp) {
	if State(p.state.Load()) == StateConnected {
		op(errs.OK)
		return
	}

	p.mu.Lock()
	switch State(p.state.Load()) {
	case StateConnected:
		p.mu.Unlock()
		op(errs.OK)
	case StateClosed:
		p.mu.Unlock()
		p.dispatchOp(ledger, errs.ServerUnavailable, op)
	case StateConnecting, StateAuthenticating:
		p.pendingOps = append(p.pendingOps, queuedOp{ledger: ledger, run: op})
		n := len(p.pendingOps)
		p.mu.Unlock()
		p.reportPendingOps(n)
	default: // StateDisconnected
		p.pendingOps = append(p.pendingOps, queuedOp{ledger: ledger, run: op})
		n := len(p.pendingOps)
		p.state.Store(int32(StateConnecting))
		p.connGeneration++
		gen := p.connGeneration
		p.mu.Unlock()
		p.reportPendingOps(n)
		go p.connect(gen)
	}
}

// reportPendingOps publishes this connection's queued-op backlog — ops
// accrued while CONNECTING/AUTHENTICATING, waiting for the handshake to
// finish before they can be dispatched — through the gauges sink, if one is
// configured.
func (p *PCC) reportPendingOps(n int) {
	if p.cfg.Gauges != nil {
		p.cfg.Gauges.SetPendingOps(p.cfg.Addr.String(), p.cfg.ConnIndex, int64(n))
	}
}

// dispatchOp hands op to the ordered executor keyed by ledger so it runs
// with the same panic recovery and same-ledger ordering as a response
// callback. If the executor has already been closed there is no worker left
// to serialize through, so op runs directly on the calling goroutine rather
// than being dropped.
func (p *PCC) dispatchOp(ledger wire.LedgerID, code errs.Code, op PendingOp) {
	if err := p.cfg.Executor.Submit(uint64(ledger), func() { op(code) }); err != nil {
		op(code)
	}
}

// resolveCompletion hands c's resolution to the ordered executor keyed by
// its ledger id, falling back to a direct resolve only when the executor
// itself has already been shut down.
func (p *PCC) resolveCompletion(c *registry.Completion, code errs.Code, payload []byte) {
	if err := p.cfg.Executor.Submit(c.Key.Ledger, func() { c.Resolve(code, payload) }); err != nil {
		p.log.Errorf("%s: ordered executor rejected dispatch, resolving inline: %v", p.cfg.Addr, err)
		c.Resolve(code, payload)
	}
}

func (p *PCC) connect(gen uint64) {
	ctx, cancel := context.WithTimeout(context.Background(), p.connectTimeout())
	defer cancel()

	netConn, err := p.cfg.dialer().DialContext(ctx, "tcp", p.cfg.Addr.String())

	p.mu.Lock()
	if p.connGeneration != gen {
		// A newer attempt (or a Close) superseded this one; drop the late connect.
		p.mu.Unlock()
		if err == nil {
			netConn.Close()
		}
		return
	}
	if err != nil {
		p.mu.Unlock()
		p.log.Warningf("%s: connect failed: %v", p.cfg.Addr, err)
		p.teardown(gen, StateDisconnected, errs.ServerUnavailable)
		return
	}

	if tc, ok := netConn.(*net.TCPConn); ok && p.cfg.TCPNoDelay {
		_ = tc.SetNoDelay(true)
	}

	p.netConn = netConn
	p.state.Store(int32(StateAuthenticating))
	p.authStartTime = time.Now()
	provider := p.cfg.AuthFactory.NewProvider(p.cfg.Addr.String(), func(code errs.Code) { p.completeAuth(gen, code) })
	p.authProvider = provider
	p.mu.Unlock()

	if p.cfg.Gauges != nil {
		p.cfg.Gauges.SetActiveConnections(p.cfg.Addr.String(), 1)
	}

	go p.readLoop(netConn, gen)
	provider.Init(func(payload []byte) error { return p.sendAuth(payload) })
}

func (p *PCC) completeAuth(gen uint64, code errs.Code) {
	p.mu.Lock()
	if p.connGeneration != gen || State(p.state.Load()) != StateAuthenticating {
		p.mu.Unlock()
		return
	}
	if code == errs.OK {
		p.state.Store(int32(StateConnected))
		ops := p.pendingOps
		p.pendingOps = nil
		p.authProvider = nil
		p.mu.Unlock()
		p.reportPendingOps(0)
		for _, op := range ops {
			op.run(errs.OK)
		}
		return
	}
	p.mu.Unlock()
	p.teardown(gen, StateDisconnected, code)
}

func (p *PCC) sendAuth(payload []byte) error {
	body, err := auth.EncodeEnvelope(auth.Envelope{PluginName: p.cfg.AuthFactory.PluginName(), Payload: payload})
	if err != nil {
		return err
	}
	return p.writeFrame(wire.NewHeader(wire.OpAuth, wire.FlagNone), body)
}

// readLoop owns netConn until it returns; a fresh SetReadDeadline before
// every frame doubles as this connection's timeout tick.
func (p *PCC) readLoop(netConn net.Conn, gen uint64) {
	buf := make([]byte, 4096)
	for {
		if p.cfg.TickDuration > 0 {
			_ = netConn.SetReadDeadline(time.Now().Add(p.cfg.TickDuration))
		}

		header, body, err := wire.ReadFrame(netConn, buf, p.cfg.maxFrameLength())
		if err != nil {
			if !p.generationLive(gen) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				p.ReapExpired(time.Now())
				continue
			}
			p.log.Warningf("%s: read loop ended: %v", p.cfg.Addr, err)
			p.teardown(gen, StateDisconnected, errs.ServerUnavailable)
			return
		}

		if !p.generationLive(gen) {
			return
		}
		p.handleFrame(header, body)
	}
}

func (p *PCC) generationLive(gen uint64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connGeneration == gen
}

func (p *PCC) handleFrame(header wire.PacketHeader, body []byte) {
	switch header.Opcode {
	case wire.OpAuth:
		p.handleAuthMessage(body)
	case wire.OpAddEntry, wire.OpReadEntry:
		status, ledger, entry, payload, err := wire.DecodeResponse(body)
		if err != nil {
			p.log.Warningf("%s: corrupt response frame, dropping: %v", p.cfg.Addr, err)
			return
		}
		payloadCopy := append([]byte(nil), payload...)
		opcode := header.Opcode
		if err := p.cfg.Executor.Submit(ledger, func() {
			if opcode == wire.OpAddEntry {
				p.handleAddResponse(status, ledger, entry)
			} else {
				p.handleReadResponse(status, ledger, entry, payloadCopy)
			}
		}); err != nil {
			p.log.Errorf("%s: ordered executor rejected response dispatch: %v", p.cfg.Addr, err)
		}
	default:
		p.log.Warningf("%s: unrecognized opcode %v, ignoring", p.cfg.Addr, header.Opcode)
	}
}

func (p *PCC) handleAuthMessage(body []byte) {
	env, err := auth.DecodeEnvelope(body)
	if err != nil {
		p.log.Warningf("%s: corrupt auth envelope, dropping: %v", p.cfg.Addr, err)
		return
	}

	p.mu.Lock()
	provider := p.authProvider
	gen := p.connGeneration
	p.mu.Unlock()
	if provider == nil {
		return
	}

	if env.PluginName != p.cfg.AuthFactory.PluginName() {
		p.completeAuth(gen, errs.Unauthorized)
		return
	}
	provider.Process(env.Payload, func(payload []byte) error { return p.sendAuth(payload) })
}

func (p *PCC) handleAddResponse(status wire.Status, ledger wire.LedgerID, entry wire.EntryID) {
	c, ok := p.reg.TakeAdd(registry.RequestKey{Ledger: ledger, Entry: entry})
	if !ok {
		p.log.Debugf("%s: stale add response for (%d,%d), ignoring", p.cfg.Addr, ledger, entry)
		return
	}
	c.Resolve(errs.MapAddStatus(status), nil)
}

// handleReadResponse falls back to the LAST_ADD_CONFIRMED-keyed queue when
// no completion is found at the concrete entry id: a read submitted with
// the sentinel entry id gets answered by the server with a concrete one.
func (p *PCC) handleReadResponse(status wire.Status, ledger wire.LedgerID, entry wire.EntryID, payload []byte) {
	c, ok := p.reg.TakeRead(registry.RequestKey{Ledger: ledger, Entry: entry})
	if !ok {
		c, ok = p.reg.TakeRead(registry.RequestKey{Ledger: ledger, Entry: wire.LastAddConfirmed})
	}
	if !ok {
		p.log.Debugf("%s: stale read response for (%d,%d), ignoring", p.cfg.Addr, ledger, entry)
		return
	}
	// Report the entry id the server answered with, not the sentinel.
	c.Key.Entry = entry
	c.Resolve(errs.MapReadStatus(status), payload)
}

// ReapExpired scans this connection's completion tables for entries whose
// deadline has passed, and checks the auth handshake timeout. Called from
// this PCC's own read loop on an idle-read timeout, and from the shared
// timer.Wheel as a backstop for connections busy enough that their read
// deadline never actually expires.
func (p *PCC) ReapExpired(now time.Time) {
	p.mu.Lock()
	authTimedOut := State(p.state.Load()) == StateAuthenticating &&
		p.cfg.AuthTimeout > 0 && !p.authStartTime.IsZero() && now.Sub(p.authStartTime) > p.cfg.AuthTimeout
	gen := p.connGeneration
	p.mu.Unlock()

	if authTimedOut {
		p.teardown(gen, StateDisconnected, errs.AuthTimeout)
		return
	}

	for _, c := range p.reg.DrainExpired(now) {
		c := c
		if err := p.cfg.Executor.Submit(c.Key.Ledger, func() {
			p.cfg.stats().RecordFailure(opName(c.Kind), 0)
			c.Resolve(errs.ServerUnavailable, nil)
		}); err != nil {
			// No worker left to serialize through; DrainExpired already
			// removed c from the registry, so it must still be resolved
			// here or it never fires at all.
			p.log.Errorf("%s: ordered executor rejected timeout dispatch, resolving inline: %v", p.cfg.Addr, err)
			c.Resolve(errs.Interrupted, nil)
		}
	}
}

func opName(kind registry.Kind) string {
	if kind == registry.KindAdd {
		return stats.OpAdd
	}
	return stats.OpRead
}

// AddEntry submits an ADD_ENTRY request. Must only be called after
// EnqueueOrDispatch has signaled OK. payload's backing array is retained
// until the write resolves (success or failure); the caller must not
// mutate it before cb fires.
func (p *PCC) AddEntry(ledger wire.LedgerID, masterKey []byte, entry wire.EntryID, payload []byte, cb WriteCallback, ctx interface{}) {
	key := registry.RequestKey{Ledger: ledger, Entry: entry}
	submitted := time.Now()
	c := registry.NewCompletion(key, registry.KindAdd, submitted.Add(p.deadlineWindow()), func(code errs.Code, _ []byte) {
		p.recordLatency(stats.OpAdd, code, submitted)
		cb(code, ledger, entry, p.cfg.Addr, ctx)
	})
	p.reg.RegisterAdd(key, c)

	body, err := wire.EncodeAddRequest(masterKey, payload)
	if err != nil {
		if taken, ok := p.reg.TakeAdd(key); ok {
			p.resolveCompletion(taken, errs.WriteFailure, nil)
		}
		return
	}
	if err := p.writeFrame(wire.NewHeader(wire.OpAddEntry, wire.FlagNone), body); err != nil {
		if taken, ok := p.reg.TakeAdd(key); ok {
			p.resolveCompletion(taken, errs.ServerUnavailable, nil)
		}
	}
}

// ReadEntry submits a READ_ENTRY request. entry may be wire.LastAddConfirmed.
func (p *PCC) ReadEntry(ledger wire.LedgerID, entry wire.EntryID, cb ReadCallback, ctx interface{}) {
	p.readEntry(ledger, entry, nil, wire.FlagNone, cb, ctx)
}

// ReadEntryAndFence submits a READ_ENTRY request with FLAG_DO_FENCING set,
// marking the ledger fenced on the server.
func (p *PCC) ReadEntryAndFence(ledger wire.LedgerID, masterKey []byte, entry wire.EntryID, cb ReadCallback, ctx interface{}) {
	p.readEntry(ledger, entry, masterKey, wire.FlagDoFencing, cb, ctx)
}

func (p *PCC) readEntry(ledger wire.LedgerID, entry wire.EntryID, masterKey []byte, flags wire.Flags, cb ReadCallback, ctx interface{}) {
	key := registry.RequestKey{Ledger: ledger, Entry: entry}
	submitted := time.Now()
	var c *registry.Completion
	c = registry.NewCompletion(key, registry.KindRead, submitted.Add(p.deadlineWindow()), func(code errs.Code, payload []byte) {
		p.recordLatency(stats.OpRead, code, submitted)
		cb(code, ledger, c.Key.Entry, payload, ctx)
	})
	p.reg.RegisterRead(key, c)

	body, err := wire.EncodeReadRequest(ledger, entry, masterKey)
	if err != nil {
		if taken, ok := p.reg.TakeRead(key); ok {
			p.resolveCompletion(taken, errs.ReadFailure, nil)
		}
		return
	}
	if err := p.writeFrame(wire.NewHeader(wire.OpReadEntry, flags), body); err != nil {
		if taken, ok := p.reg.TakeRead(key); ok {
			p.resolveCompletion(taken, errs.ServerUnavailable, nil)
		}
	}
}

// Trim submits a fire-and-forget TRIM request: no completion is registered
// and the call returns as soon as the frame is written (or fails to be).
// masterKey is accepted for contract parity with add/fence but, per the
// wire format, is not placed on the TRIM frame.
func (p *PCC) Trim(ledger wire.LedgerID, masterKey []byte, lastEntry wire.EntryID) error {
	body := wire.EncodeTrimRequest(ledger, lastEntry)
	return p.writeFrame(wire.NewHeader(wire.OpTrim, wire.FlagNone), body)
}

func (p *PCC) writeFrame(header wire.PacketHeader, body []byte) error {
	p.mu.Lock()
	netConn := p.netConn
	p.mu.Unlock()
	if netConn == nil {
		return errNotConnected
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	return wire.WriteFrame(netConn, header, body)
}

func (p *PCC) deadlineWindow() time.Duration {
	if p.cfg.OpTimeout > 0 {
		return p.cfg.OpTimeout
	}
	if p.cfg.TickDuration > 0 {
		return 3 * p.cfg.TickDuration
	}
	return 30 * time.Second
}

func (p *PCC) connectTimeout() time.Duration {
	if p.cfg.TickDuration > 0 {
		return p.cfg.TickDuration
	}
	return 10 * time.Second
}

func (p *PCC) recordLatency(op string, code errs.Code, submitted time.Time) {
	latencyMs := float64(time.Since(submitted)) / float64(time.Millisecond)
	if code == errs.OK {
		p.cfg.stats().RecordSuccess(op, latencyMs)
	} else {
		p.cfg.stats().RecordFailure(op, latencyMs)
	}
}

// Disconnect tears down the current transport, if any, and returns the PCC
// to DISCONNECTED. The PCC remains usable; the next EnqueueOrDispatch
// reconnects it.
func (p *PCC) Disconnect() {
	p.mu.Lock()
	gen := p.connGeneration
	p.mu.Unlock()
	p.teardown(gen, StateDisconnected, errs.ServerUnavailable)
}

// Close permanently shuts down the PCC: CLOSED is terminal, every
// outstanding completion and pending op fails, and future
// EnqueueOrDispatch calls fail immediately.
func (p *PCC) Close() {
	p.closeOnce.Do(func() {
		p.mu.Lock()
		gen := p.connGeneration
		p.mu.Unlock()
		p.teardown(gen, StateClosed, errs.ServerUnavailable)
	})
}

// teardown is the single path for every state-machine transition that
// tears down the live connection: connect failure, peer disconnect, auth
// failure/timeout, Disconnect, and Close. gen must match the PCC's current
// connGeneration or the call is a no-op (a newer connect/teardown already
// superseded it).
func (p *PCC) teardown(gen uint64, target State, code errs.Code) {
	p.mu.Lock()
	if p.connGeneration != gen || State(p.state.Load()) == StateClosed {
		p.mu.Unlock()
		return
	}
	netConn := p.netConn
	p.netConn = nil
	p.connGeneration++
	ops := p.pendingOps
	p.pendingOps = nil
	p.authProvider = nil
	p.authStartTime = time.Time{}
	p.state.Store(int32(target))
	p.mu.Unlock()

	if len(ops) > 0 {
		p.reportPendingOps(0)
	}
	if netConn != nil {
		netConn.Close()
		if p.cfg.Gauges != nil {
			p.cfg.Gauges.SetActiveConnections(p.cfg.Addr.String(), 0)
		}
	}
	for _, qo := range ops {
		p.dispatchOp(qo.ledger, code, qo.run)
	}
	for _, c := range p.reg.DrainAll(registry.KindAdd) {
		p.resolveCompletion(c, code, nil)
	}
	for _, c := range p.reg.DrainAll(registry.KindRead) {
		p.resolveCompletion(c, code, nil)
	}
}
