package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics exposes counters/histograms for the ingestion path.
type WebhookMetrics struct {
	ingestTotal   *prometheus.CounterVec
	ingestLatency prometheus.Histogram
}

func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	m := &WebhookMetrics{
		ingestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "webhook",
			Name:      "ingest_total",
			Help:      "Total inbound webhook deliveries by outcome",
		}, []string{"status"}),
		ingestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "webhook",
			Name:      "ingest_latency_seconds",
			Help:      "Latency of webhook ingestion",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.ingestTotal, m.ingestLatency)
	return m
}

func (m *WebhookMetrics) ObserveIngest(status string) {
	if m == nil {
		return
	}
	m.ingestTotal.WithLabelValues(status).Inc()
}

func (m *WebhookMetrics) ObserveIngestLatency(seconds float64) {
	if m == nil {
		return
	}
	m.ingestLatency.Observe(seconds)
}

// SLAMetrics exposes counters for timer transitions and breach detection.
type SLAMetrics struct {
	transitions  *prometheus.CounterVec
	breachTotal  prometheus.Counter
	sweepLatency prometheus.Histogram
}

func NewSLAMetrics(reg prometheus.Registerer) *SLAMetrics {
	m := &SLAMetrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "sla",
			Name:      "timer_transitions_total",
			Help:      "Total SLA timer state transitions",
		}, []string{"transition"}),
		breachTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "inbox",
			Subsystem: "sla",
			Name:      "breach_total",
			Help:      "Total SLA breaches detected",
		}),
		sweepLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "inbox",
			Subsystem: "sla",
			Name:      "sweep_latency_seconds",
			Help:      "Latency of the periodic breach sweep",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.transitions, m.breachTotal, m.sweepLatency)
	return m
}

func (m *SLAMetrics) ObserveTransition(transition string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(transition).Inc()
}

func (m *SLAMetrics) ObserveBreach() {
	if m == nil {
		return
	}
	m.breachTotal.Inc()
}

func (m *SLAMetrics) ObserveSweepLatency(seconds float64) {
	if m == nil {
		return
	}
	m.sweepLatency.Observe(seconds)
}
