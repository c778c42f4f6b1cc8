package stats

import "testing"

func valueOf(t *testing.T, g *TopologyGauges, name string) (int64, bool) {
	t.Helper()
	var found int64
	var ok bool
	g.Each(func(n string, v interface{}) {
		if n != name {
			return
		}
		ok = true
		switch m := v.(type) {
		case interface{ Value() int64 }:
			found = m.Value()
		}
	})
	return found, ok
}

func TestSetActiveConnectionsPublishesGauge(t *testing.T) {
	g := NewTopologyGauges()
	g.SetActiveConnections("10.0.0.1:3181", 3)

	got, ok := valueOf(t, g, "pool.10.0.0.1:3181.active_connections")
	if !ok {
		t.Fatalf("expected gauge to be registered")
	}
	if got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}

	g.SetActiveConnections("10.0.0.1:3181", 0)
	got, ok = valueOf(t, g, "pool.10.0.0.1:3181.active_connections")
	if !ok || got != 0 {
		t.Fatalf("expected update to 0, got %d (ok=%v)", got, ok)
	}
}

func TestSetPendingOpsPublishesPerConnectionGauge(t *testing.T) {
	g := NewTopologyGauges()
	g.SetPendingOps("10.0.0.1:3181", 0, 5)
	g.SetPendingOps("10.0.0.1:3181", 1, 2)

	got0, ok0 := valueOf(t, g, "conn.10.0.0.1:3181.0.pending_ops")
	got1, ok1 := valueOf(t, g, "conn.10.0.0.1:3181.1.pending_ops")
	if !ok0 || got0 != 5 {
		t.Fatalf("expected connection 0 backlog 5, got %d (ok=%v)", got0, ok0)
	}
	if !ok1 || got1 != 2 {
		t.Fatalf("expected connection 1 backlog 2, got %d (ok=%v)", got1, ok1)
	}

	g.SetPendingOps("10.0.0.1:3181", 0, 0)
	got0, ok0 = valueOf(t, g, "conn.10.0.0.1:3181.0.pending_ops")
	if !ok0 || got0 != 0 {
		t.Fatalf("expected connection 0 backlog drained to 0, got %d (ok=%v)", got0, ok0)
	}
}

func TestTopologyGaugesAreIsolatedPerInstance(t *testing.T) {
	a := NewTopologyGauges()
	b := NewTopologyGauges()

	a.SetActiveConnections("addr", 1)
	if _, ok := valueOf(t, b, "pool.addr.active_connections"); ok {
		t.Fatalf("expected separate TopologyGauges instances not to share state")
	}
}
