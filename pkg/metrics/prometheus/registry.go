package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/paylink/pkg/metrics"
)

// registryMetrics implements metrics.RegistryMetrics.
type registryMetrics struct {
	sessionsOpened   prometheus.Counter
	sessionsClosed   *prometheus.CounterVec
	paymentsApplied  prometheus.Histogram
	paymentsRejected *prometheus.CounterVec
	activeSessions   prometheus.Gauge
}

// NewRegistryMetrics creates the registry metrics set, registered against
// the process-wide registry. Returns nil when metrics are disabled.
func NewRegistryMetrics() metrics.RegistryMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()
	factory := promauto.With(reg)

	return &registryMetrics{
		sessionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_registry_sessions_opened_total",
			Help: "Sessions successfully opened",
		}),
		sessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_registry_sessions_closed_total",
			Help: "Sessions removed from the registry by close reason",
		}, []string{"reason"}),
		paymentsApplied: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paylink_registry_payment_applied",
			Help:    "Applied payment amounts in base units",
			Buckets: prometheus.ExponentialBuckets(100, 10, 7),
		}),
		paymentsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "paylink_registry_payments_rejected_total",
			Help: "Payments refused before reaching the channel, by error code",
		}, []string{"code"}),
		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "paylink_registry_active_sessions",
			Help: "Sessions currently live in the registry",
		}),
	}
}

func (m *registryMetrics) RecordSessionOpened() {
	m.sessionsOpened.Inc()
}

func (m *registryMetrics) RecordSessionClosed(reason string) {
	m.sessionsClosed.WithLabelValues(reason).Inc()
}

func (m *registryMetrics) RecordPayment(applied int64) {
	m.paymentsApplied.Observe(float64(applied))
}

func (m *registryMetrics) RecordPaymentRejected(code string) {
	m.paymentsRejected.WithLabelValues(code).Inc()
}

func (m *registryMetrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}
