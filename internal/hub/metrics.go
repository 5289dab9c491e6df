package hub

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsPrefix = "vigil_hub"

// Reasons a validate reply is rejected.
const (
	rejectUnknownCallback   = "unknown_callback"
	rejectValidatorMismatch = "validator_mismatch"
	rejectTargetMismatch    = "target_mismatch"
	rejectBadSignature      = "bad_signature"
	rejectBadLatency        = "bad_latency"
)

// Metrics holds the hub's Prometheus collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	connections         prometheus.Gauge
	availableValidators prometheus.Gauge
	signups             *prometheus.CounterVec
	dispatched          prometheus.Counter
	dispatchFailures    prometheus.Counter
	expired             prometheus.Counter
	repliesRejected     *prometheus.CounterVec
	ticksRecorded       *prometheus.CounterVec
	payoutsCredited     prometheus.Counter
	storeFailures       prometheus.Counter
	dispatchDuration    prometheus.Histogram
}

// NewMetrics creates and registers all hub collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "_connections",
			Help: "Open websocket connections, registered or not",
		}),
		availableValidators: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: metricsPrefix + "_validators_available",
			Help: "Registered validator connections eligible for dispatch",
		}),
		signups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "_signups_total",
			Help: "Signup requests by result",
		}, []string{"result"}),
		dispatched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_assignments_dispatched_total",
			Help: "Validate assignments queued to validators",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_assignments_failed_total",
			Help: "Assignments that could not be queued (buffer full or connection closed)",
		}),
		expired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_assignments_expired_total",
			Help: "Assignments discarded after their deadline without a reply",
		}),
		repliesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "_replies_rejected_total",
			Help: "Validate replies dropped, by reason",
		}, []string{"reason"}),
		ticksRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricsPrefix + "_ticks_recorded_total",
			Help: "Verified check results committed to the ledger",
		}, []string{"status"}),
		payoutsCredited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_payouts_credited_total",
			Help: "Payout units credited to validators",
		}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricsPrefix + "_store_failures_total",
			Help: "Tick commits rejected by the durable store",
		}),
		dispatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    metricsPrefix + "_dispatch_duration_seconds",
			Help:    "Time taken by one scheduler fan-out",
			Buckets: prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.availableValidators,
		m.signups,
		m.dispatched,
		m.dispatchFailures,
		m.expired,
		m.repliesRejected,
		m.ticksRecorded,
		m.payoutsCredited,
		m.storeFailures,
		m.dispatchDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
