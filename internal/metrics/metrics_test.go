package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCountersAndGauge(t *testing.T) {
	t.Parallel()

	m := New(prometheus.NewRegistry())
	m.CycleFinished("ok")
	m.CycleFinished("ok")
	m.TickDropped()
	m.SignalsInserted(3)
	m.SignalsInserted(0)
	m.GatewayRun("profile_posts", "succeeded")
	m.SetScanning(true)

	if got := testutil.ToFloat64(m.cycles.WithLabelValues("ok")); got != 2 {
		t.Fatalf("expected 2 ok cycles, got %v", got)
	}
	if got := testutil.ToFloat64(m.ticksDropped); got != 1 {
		t.Fatalf("expected 1 dropped tick, got %v", got)
	}
	if got := testutil.ToFloat64(m.signals); got != 3 {
		t.Fatalf("expected 3 signals, got %v", got)
	}
	if got := testutil.ToFloat64(m.scanning); got != 1 {
		t.Fatalf("expected scanning gauge 1, got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	t.Parallel()

	var m *Metrics
	m.CycleFinished("ok")
	m.TickDropped()
	m.ProfileScanned("failed")
	m.SignalsInserted(1)
	m.GatewayRun("k", "o")
	m.WebhookDelivered("ok")
	m.Enrichment("profile", "ok")
	m.SetScanning(false)
}
