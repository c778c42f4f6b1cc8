package stats

import (
	"fmt"

	gometrics "github.com/rcrowley/go-metrics"
)

// TopologyGauges publishes the live shape of the connection pools — active
// connection counts and pending-op backlogs per server — through
// rcrowley/go-metrics, a distinct concern from the per-operation latency
// histograms VictoriaMetricsSink records.
type TopologyGauges struct {
	registry gometrics.Registry
}

// NewTopologyGauges creates a fresh, isolated go-metrics registry.
func NewTopologyGauges() *TopologyGauges {
	return &TopologyGauges{registry: gometrics.NewRegistry()}
}

func (g *TopologyGauges) gauge(name string) gometrics.Gauge {
	return gometrics.GetOrRegisterGauge(name, g.registry)
}

// SetActiveConnections records how many of a pool's N connections are
// currently CONNECTED.
func (g *TopologyGauges) SetActiveConnections(addr string, n int64) {
	g.gauge(fmt.Sprintf("pool.%s.active_connections", addr)).Update(n)
}

// SetPendingOps records the current pendingOps backlog for one connection.
func (g *TopologyGauges) SetPendingOps(addr string, connIndex int, n int64) {
	g.gauge(fmt.Sprintf("conn.%s.%d.pending_ops", addr, connIndex)).Update(n)
}

// Each exposes the underlying registry's iteration for a caller-supplied
// exporter, mirroring gometrics.Registry.Each's own signature.
func (g *TopologyGauges) Each(fn func(name string, value interface{})) {
	g.registry.Each(fn)
}
