package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics 汇总调度、网关与补全相关指标，nil 接收者上的方法均为空操作。
type Metrics struct {
	cycles          *prometheus.CounterVec
	ticksDropped    prometheus.Counter
	profilesScanned *prometheus.CounterVec
	signals         prometheus.Counter
	gatewayRuns     *prometheus.CounterVec
	webhooks        *prometheus.CounterVec
	enrichments     *prometheus.CounterVec
	scanning        prometheus.Gauge
}

// New 在 reg 上注册全部指标。
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_radar_scan_cycles_total",
			Help: "Scheduler cycles by outcome.",
		}, []string{"outcome"}),
		ticksDropped: f.NewCounter(prometheus.CounterOpts{
			Name: "signal_radar_ticks_dropped_total",
			Help: "Ticks dropped because a cycle was already running.",
		}),
		profilesScanned: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_radar_profiles_scanned_total",
			Help: "Profiles processed by the scheduler by outcome.",
		}, []string{"outcome"}),
		signals: f.NewCounter(prometheus.CounterOpts{
			Name: "signal_radar_signals_inserted_total",
			Help: "Signal events newly persisted.",
		}),
		gatewayRuns: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_radar_gateway_runs_total",
			Help: "Remote scraping runs by job kind and outcome.",
		}, []string{"kind", "outcome"}),
		webhooks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_radar_webhook_deliveries_total",
			Help: "Webhook deliveries by outcome.",
		}, []string{"outcome"}),
		enrichments: f.NewCounterVec(prometheus.CounterOpts{
			Name: "signal_radar_enrichment_calls_total",
			Help: "Profile and company enrichment calls by outcome.",
		}, []string{"kind", "outcome"}),
		scanning: f.NewGauge(prometheus.GaugeOpts{
			Name: "signal_radar_scheduler_scanning",
			Help: "1 while a scheduler cycle is running.",
		}),
	}
}

func (m *Metrics) CycleFinished(outcome string) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

func (m *Metrics) ProfileScanned(outcome string) {
	if m == nil {
		return
	}
	m.profilesScanned.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SignalsInserted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.signals.Add(float64(n))
}

func (m *Metrics) GatewayRun(kind, outcome string) {
	if m == nil {
		return
	}
	m.gatewayRuns.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) WebhookDelivered(outcome string) {
	if m == nil {
		return
	}
	m.webhooks.WithLabelValues(outcome).Inc()
}

func (m *Metrics) Enrichment(kind, outcome string) {
	if m == nil {
		return
	}
	m.enrichments.WithLabelValues(kind, outcome).Inc()
}

func (m *Metrics) SetScanning(active bool) {
	if m == nil {
		return
	}
	if active {
		m.scanning.Set(1)
		return
	}
	m.scanning.Set(0)
}
