package stats

import (
	"fmt"
	"io"

	"github.com/VictoriaMetrics/metrics"
)

// VictoriaMetricsSink records op latencies as Prometheus-compatible
// histograms, one per (op, outcome) pair.
//
// A private *metrics.Set is used instead of the package-level default set
// so multiple *client.Client instances in the same process do not collide
// on metric names.
type VictoriaMetricsSink struct {
	set *metrics.Set
}

// NewVictoriaMetricsSink creates a sink backed by its own metrics.Set.
func NewVictoriaMetricsSink() *VictoriaMetricsSink {
	return &VictoriaMetricsSink{set: metrics.NewSet()}
}

func (s *VictoriaMetricsSink) RecordSuccess(op string, latencyMs float64) {
	s.histogram(op, "success").Update(latencyMs)
}

func (s *VictoriaMetricsSink) RecordFailure(op string, latencyMs float64) {
	s.histogram(op, "failure").Update(latencyMs)
}

func (s *VictoriaMetricsSink) histogram(op, outcome string) *metrics.Histogram {
	name := fmt.Sprintf(`ledgerclient_op_latency_ms{op=%q,result=%q}`, op, outcome)
	return s.set.GetOrCreateHistogram(name)
}

// WritePrometheus writes the current metric snapshot in Prometheus exposition
// format, for embedding behind an operator-supplied /metrics handler.
func (s *VictoriaMetricsSink) WritePrometheus(w io.Writer) {
	s.set.WritePrometheus(w)
}
