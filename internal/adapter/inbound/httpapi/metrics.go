package httpapi

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the gateway's Prometheus metrics on a private registry, so
// the /metrics endpoint exposes exactly what the gateway registers and
// nothing inherited from the global default registry.
type Metrics struct {
	registry *prometheus.Registry

	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	AuthFailures    prometheus.Counter
}

// NewMetrics creates and registers the gateway metrics.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	return &Metrics{
		registry: reg,
		RequestsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "tamshai_gateway",
				Name:      "requests_total",
				Help:      "Gateway requests by endpoint and result code",
			},
			[]string{"endpoint", "code"}, // code="ok" on success
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "tamshai_gateway",
				Name:      "request_duration_seconds",
				Help:      "Request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		AuthFailures: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Namespace: "tamshai_gateway",
				Name:      "auth_failures_total",
				Help:      "Requests rejected at the bearer check",
			},
		),
	}
}

// RegisterPendingConfirmations exposes the live pending-confirmation count.
func (m *Metrics) RegisterPendingConfirmations(count func() float64) {
	promauto.With(m.registry).NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: "tamshai_gateway",
			Name:      "pending_confirmations",
			Help:      "Confirmations currently awaiting a decision",
		},
		count,
	)
}

// RegisterAuditDrops exposes the audit recorder's drop counter.
func (m *Metrics) RegisterAuditDrops(count func() float64) {
	promauto.With(m.registry).NewCounterFunc(
		prometheus.CounterOpts{
			Namespace: "tamshai_gateway",
			Name:      "audit_drops_total",
			Help:      "Audit records dropped under backpressure",
		},
		count,
	)
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
