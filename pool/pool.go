package pool

import (
	"sync"

	"github.com/kolbv/ledgerclient/auth"
	"github.com/kolbv/ledgerclient/conn"
	"github.com/kolbv/ledgerclient/ordered"
	"github.com/kolbv/ledgerclient/stats"
	"github.com/kolbv/ledgerclient/wire"
)

// Config parameterizes a Pool's PCCs.
type Config struct {
	Addr                 wire.ServerAddress
	ConnectionsPerServer int
	PCC                  conn.Config // template; Addr and ConnIndex are overwritten per PCC
	AuthFactory          auth.ProviderFactory
	Executor             *ordered.Executor
	Stats                stats.Sink
	Gauges               *stats.TopologyGauges
}

// Pool is N conn.PCC instances for one server address. Pools are built
// uninitialized (holding no PCCs) so a Client can publish-then-initialize
// without racing: the loser of a concurrent creation race discards its
// shell without ever calling Init, matching the "initialize after publish"
// ordering that avoids duplicate side effects.
type Pool struct {
	cfg  Config
	pccs []*conn.PCC

	initOnce sync.Once
}

// New builds an uninitialized Pool. Call Init before use.
func New(cfg Config) *Pool {
	n := cfg.ConnectionsPerServer
	if n <= 0 {
		n = 1
	}
	cfg.ConnectionsPerServer = n
	return &Pool{cfg: cfg}
}

// Init constructs the pool's PCCs. Safe to call multiple times; only the
// first call has effect.
func (p *Pool) Init() {
	p.initOnce.Do(func() {
		p.pccs = make([]*conn.PCC, p.cfg.ConnectionsPerServer)
		for i := range p.pccs {
			pccCfg := p.cfg.PCC
			pccCfg.Addr = p.cfg.Addr
			pccCfg.ConnIndex = i
			pccCfg.AuthFactory = p.cfg.AuthFactory
			pccCfg.Executor = p.cfg.Executor
			pccCfg.Stats = p.cfg.Stats
			pccCfg.Gauges = p.cfg.Gauges
			p.pccs[i] = conn.New(pccCfg)
		}
	})
}

// Pick routes routingKey to one of the pool's PCCs by simple modulo, so
// repeated calls with the same key land on the same connection. Returns
// nil if the pool has not been Init'd yet (or holds no PCCs).
func (p *Pool) Pick(routingKey uint64) *conn.PCC {
	if len(p.pccs) == 0 {
		return nil
	}
	idx := routingKey % uint64(len(p.pccs))
	return p.pccs[idx]
}

// PCCs exposes the pool's connections, e.g. for ReapExpired sweeps.
func (p *Pool) PCCs() []*conn.PCC { return p.pccs }

// Disconnect tears down every PCC's transport without closing the pool
// permanently; used by Client.ClosePeers to force reconnects.
func (p *Pool) Disconnect() {
	for _, c := range p.pccs {
		c.Disconnect()
	}
}

// Close permanently shuts down every PCC in the pool.
func (p *Pool) Close() {
	for _, c := range p.pccs {
		c.Close()
	}
}
