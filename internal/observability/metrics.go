package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides a centralized interface for collecting server metrics.
//
// The metrics system is built on Prometheus and tracks:
//   - Bytes and lines tailed from transcript files
//   - Parse outcomes, including the malformed-line rate
//   - Batches flushed by the debouncer, and what triggered the flush
//   - Active watchers and WebSocket clients
//   - WebSocket frames sent and received, and protocol errors
//
// Usage:
//
//	metrics := observability.NewMetrics()
//	metrics.LineParsed("assistant-block")
//	metrics.BatchFlushed("trailing", len(batch.Messages))
type Metrics struct {
	// BytesTailed counts bytes read from transcript files.
	// Labels: session_id
	BytesTailed *prometheus.CounterVec

	// LinesParsed counts parsed lines by resulting message kind,
	// including "malformed" for lines that failed to parse.
	// Labels: kind
	LinesParsed *prometheus.CounterVec

	// BatchesFlushed counts debounced batches emitted by the watcher.
	// Labels: trigger (trailing|max_wait|stop)
	BatchesFlushed *prometheus.CounterVec

	// BatchSize records the number of messages per flushed batch.
	// Buckets: 1, 2, 5, 10, 25, 50, 100, 250
	BatchSize prometheus.Histogram

	// WatchErrors counts watcher errors by class.
	// Labels: kind (READ_ERROR|WATCH_ERROR)
	WatchErrors *prometheus.CounterVec

	// ActiveWatchers is a gauge of sessions currently being tailed.
	ActiveWatchers prometheus.Gauge

	// ActiveWSClients is a gauge of currently connected WebSocket clients.
	ActiveWSClients prometheus.Gauge

	// ActiveSubscriptions is a gauge of currently subscribed (client,
	// session) pairs.
	ActiveSubscriptions prometheus.Gauge

	// WSFramesReceived counts inbound WebSocket frames by message type.
	// Labels: type (subscribe|unsubscribe|invalid)
	WSFramesReceived *prometheus.CounterVec

	// WSFramesSent counts outbound WebSocket frames by message type.
	// Labels: type (messages|lifecycle|session:started|session:stopped|session:error|session:activity);
	// error frames are not counted.
	WSFramesSent *prometheus.CounterVec

	// EnrichDuration measures time spent enriching a session in seconds.
	// Buckets: 0.001s, 0.005s, 0.01s, 0.05s, 0.1s, 0.5s, 1s, 5s
	EnrichDuration prometheus.Histogram

	// EstimatedCostUSD tracks cumulative estimated LLM cost observed
	// across enriched sessions.
	// Labels: model
	EstimatedCostUSD *prometheus.CounterVec
}

// NewMetrics constructs and registers all collectors against the default
// Prometheus registry via promauto, matching the teacher's construction
// style.
func NewMetrics() *Metrics {
	return &Metrics{
		BytesTailed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_bytes_tailed_total",
				Help: "Total bytes read from transcript files by session",
			},
			[]string{"session_id"},
		),

		LinesParsed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_lines_parsed_total",
				Help: "Total transcript lines parsed by resulting message kind",
			},
			[]string{"kind"},
		),

		BatchesFlushed: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_batches_flushed_total",
				Help: "Total debounced batches flushed by the watcher, by trigger",
			},
			[]string{"trigger"},
		),

		BatchSize: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleetsub_batch_size_messages",
				Help:    "Number of messages per flushed batch",
				Buckets: []float64{1, 2, 5, 10, 25, 50, 100, 250},
			},
		),

		WatchErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_watch_errors_total",
				Help: "Total watcher errors by class",
			},
			[]string{"kind"},
		),

		ActiveWatchers: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetsub_active_watchers",
				Help: "Number of sessions currently being tailed",
			},
		),

		ActiveWSClients: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetsub_active_ws_clients",
				Help: "Number of currently connected WebSocket clients",
			},
		),

		ActiveSubscriptions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "fleetsub_active_subscriptions",
				Help: "Number of currently subscribed (client, session) pairs",
			},
		),

		WSFramesReceived: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_ws_frames_received_total",
				Help: "Total inbound WebSocket frames by message type",
			},
			[]string{"type"},
		),

		WSFramesSent: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_ws_frames_sent_total",
				Help: "Total outbound WebSocket frames by message type",
			},
			[]string{"type"},
		),

		EnrichDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "fleetsub_enrich_duration_seconds",
				Help:    "Duration of session enrichment in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
			},
		),

		EstimatedCostUSD: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "fleetsub_estimated_cost_usd_total",
				Help: "Cumulative estimated LLM cost in USD observed across enriched sessions, by model",
			},
			[]string{"model"},
		),
	}
}

// LineParsed records one parsed transcript line.
func (m *Metrics) LineParsed(kind string) {
	m.LinesParsed.WithLabelValues(kind).Inc()
}

// BatchFlushed records one debounced batch flush.
func (m *Metrics) BatchFlushed(trigger string, messageCount int) {
	m.BatchesFlushed.WithLabelValues(trigger).Inc()
	m.BatchSize.Observe(float64(messageCount))
}

// WatchError records one watcher error of the given class.
func (m *Metrics) WatchError(kind string) {
	m.WatchErrors.WithLabelValues(kind).Inc()
}

// WatcherStarted increments the active watcher gauge.
func (m *Metrics) WatcherStarted() {
	m.ActiveWatchers.Inc()
}

// WatcherStopped decrements the active watcher gauge.
func (m *Metrics) WatcherStopped() {
	m.ActiveWatchers.Dec()
}

// ClientConnected increments the active client gauge.
func (m *Metrics) ClientConnected() {
	m.ActiveWSClients.Inc()
}

// ClientDisconnected decrements the active client gauge.
func (m *Metrics) ClientDisconnected() {
	m.ActiveWSClients.Dec()
}

// Subscribed increments the active subscription gauge.
func (m *Metrics) Subscribed() {
	m.ActiveSubscriptions.Inc()
}

// Unsubscribed decrements the active subscription gauge.
func (m *Metrics) Unsubscribed() {
	m.ActiveSubscriptions.Dec()
}

// FrameReceived records one inbound WebSocket frame.
func (m *Metrics) FrameReceived(messageType string) {
	m.WSFramesReceived.WithLabelValues(messageType).Inc()
}

// FrameSent records one outbound WebSocket frame.
func (m *Metrics) FrameSent(messageType string) {
	m.WSFramesSent.WithLabelValues(messageType).Inc()
}

// RecordEnrichDuration records how long one Enrich call took, in seconds.
func (m *Metrics) RecordEnrichDuration(seconds float64) {
	m.EnrichDuration.Observe(seconds)
}

// RecordEstimatedCost adds to the cumulative estimated cost for a model.
func (m *Metrics) RecordEstimatedCost(model string, usd float64) {
	m.EstimatedCostUSD.WithLabelValues(model).Add(usd)
}
