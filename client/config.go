package client

import (
	"time"

	"github.com/kolbv/ledgerclient/auth"
	"github.com/kolbv/ledgerclient/stats"
)

// Config enumerates the wire protocol's configuration keys. Populated
// programmatically by library callers; cmd/bkbench is the only place that
// binds these to flags/env/file via viper.
type Config struct {
	// ConnectionsPerServer is the number of PCCs held per server address.
	ConnectionsPerServer int
	// OpTimeout is "read timeout": the deadline window for each submitted
	// add/read, in seconds on the wire but held here as a time.Duration.
	OpTimeout time.Duration
	// AuthTimeout bounds the AUTHENTICATING state.
	AuthTimeout time.Duration
	// TCPNoDelay disables Nagle's algorithm on every PCC's socket.
	TCPNoDelay bool
	// TickDuration is "client tick duration": the shared timer.Wheel's
	// cadence, and each PCC's own read-loop deadline.
	TickDuration time.Duration
	// TickCount is "client tick count": the timer.Wheel's bucket count.
	TickCount int
	// MaxFrameLength bounds inbound frame size; 0 uses wire.DefaultMaxFrameLength.
	MaxFrameLength int
	// WorkerCount sizes the shared ordered.Executor; 0 uses runtime.GOMAXPROCS(0).
	WorkerCount int

	AuthFactory auth.ProviderFactory
	Stats       stats.Sink
	Gauges      *stats.TopologyGauges
}

// DefaultConfig returns a Config with the wire protocol's suggested
// defaults: 1 connection per server, no auth (auth.NoopFactory), and a
// tick cadence tuned for a local/LAN deployment.
func DefaultConfig() Config {
	return Config{
		ConnectionsPerServer: 1,
		OpTimeout:            5 * time.Second,
		AuthTimeout:          10 * time.Second,
		TCPNoDelay:           true,
		TickDuration:         time.Second,
		TickCount:            10,
		AuthFactory:          auth.NoopFactory{},
		Stats:                stats.NoopSink{},
		Gauges:               stats.NewTopologyGauges(),
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.ConnectionsPerServer <= 0 {
		c.ConnectionsPerServer = d.ConnectionsPerServer
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = d.OpTimeout
	}
	if c.AuthTimeout <= 0 {
		c.AuthTimeout = d.AuthTimeout
	}
	if c.TickDuration <= 0 {
		c.TickDuration = d.TickDuration
	}
	if c.TickCount <= 0 {
		c.TickCount = d.TickCount
	}
	if c.AuthFactory == nil {
		c.AuthFactory = d.AuthFactory
	}
	if c.Stats == nil {
		c.Stats = d.Stats
	}
	if c.Gauges == nil {
		c.Gauges = d.Gauges
	}
	return c
}
