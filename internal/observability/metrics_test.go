package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsLineParsedIncrementsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsForRegistry(reg)

	m.LineParsed("assistant-block")
	m.LineParsed("assistant-block")
	m.LineParsed("malformed")

	if got := testutil.ToFloat64(m.LinesParsed.WithLabelValues("assistant-block")); got != 2 {
		t.Errorf("assistant-block count = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.LinesParsed.WithLabelValues("malformed")); got != 1 {
		t.Errorf("malformed count = %v, want 1", got)
	}
}

func TestMetricsBatchFlushedCountsByTrigger(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsForRegistry(reg)

	m.BatchFlushed("trailing", 5)
	m.BatchFlushed("max_wait", 1)

	if got := testutil.ToFloat64(m.BatchesFlushed.WithLabelValues("trailing")); got != 1 {
		t.Errorf("trailing count = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.BatchesFlushed.WithLabelValues("max_wait")); got != 1 {
		t.Errorf("max_wait count = %v, want 1", got)
	}
}

func TestMetricsWatcherGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := newMetricsForRegistry(reg)

	m.WatcherStarted()
	m.WatcherStarted()
	m.WatcherStopped()

	if got := testutil.ToFloat64(m.ActiveWatchers); got != 1 {
		t.Errorf("ActiveWatchers = %v, want 1", got)
	}
}

// newMetricsForRegistry builds a Metrics struct registered against a
// private registry so tests don't collide with the global default
// registerer across parallel test binaries.
func newMetricsForRegistry(reg *prometheus.Registry) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		BytesTailed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_bytes_tailed_total"},
			[]string{"session_id"},
		),
		LinesParsed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_lines_parsed_total"},
			[]string{"kind"},
		),
		BatchesFlushed: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_batches_flushed_total"},
			[]string{"trigger"},
		),
		BatchSize: factory.NewHistogram(
			prometheus.HistogramOpts{Name: "test_batch_size_messages", Buckets: prometheus.DefBuckets},
		),
		WatchErrors: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_watch_errors_total"},
			[]string{"kind"},
		),
		ActiveWatchers: factory.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_watchers"},
		),
		ActiveWSClients: factory.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_ws_clients"},
		),
		ActiveSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{Name: "test_active_subscriptions"},
		),
		WSFramesReceived: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_ws_frames_received_total"},
			[]string{"type"},
		),
		WSFramesSent: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_ws_frames_sent_total"},
			[]string{"type"},
		),
		EnrichDuration: factory.NewHistogram(
			prometheus.HistogramOpts{Name: "test_enrich_duration_seconds", Buckets: prometheus.DefBuckets},
		),
		EstimatedCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{Name: "test_estimated_cost_usd_total"},
			[]string{"model"},
		),
	}
}
