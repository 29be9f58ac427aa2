// Package prometheus implements the metrics interfaces on top of the
// prometheus client library.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/paylink/pkg/metrics"
)

// linkMetrics implements metrics.LinkMetrics.
type linkMetrics struct {
	connects    prometheus.Counter
	disconnects prometheus.Counter
	giveUps     prometheus.Counter
	queueDepth  prometheus.Histogram
}

// NewLinkMetrics creates the link metrics set, registered against the
// process-wide registry. Returns nil when metrics are disabled.
func NewLinkMetrics() metrics.LinkMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()
	factory := promauto.With(reg)

	return &linkMetrics{
		connects: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_link_connects_total",
			Help: "Socket establishments, initial connects and reconnects combined",
		}),
		disconnects: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_link_disconnects_total",
			Help: "Sockets lost for reasons other than a local close",
		}),
		giveUps: factory.NewCounter(prometheus.CounterOpts{
			Name: "paylink_link_give_ups_total",
			Help: "Links that entered the permanently-failed state",
		}),
		queueDepth: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "paylink_link_queue_depth",
			Help:    "Outbound queue length observed at enqueue time",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		}),
	}
}

func (m *linkMetrics) RecordConnect() {
	m.connects.Inc()
}

func (m *linkMetrics) RecordDisconnect() {
	m.disconnects.Inc()
}

func (m *linkMetrics) RecordGiveUp() {
	m.giveUps.Inc()
}

func (m *linkMetrics) RecordQueueDepth(depth int) {
	m.queueDepth.Observe(float64(depth))
}
