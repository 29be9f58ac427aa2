// Package metrics defines the instrumentation interfaces consumed by the
// link, session, and registry layers.
//
// The interfaces live here, decoupled from any metrics backend, so that the
// core packages never import prometheus directly. The prometheus subpackage
// provides the real implementations; a nil interface value disables
// collection with zero overhead.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.RWMutex
	registry *prometheus.Registry
)

// InitRegistry creates the process-wide metrics registry. Call once at
// startup, before any component constructs its metrics. Without this call
// all metrics constructors return nil and collection is disabled.
func InitRegistry() {
	mu.Lock()
	defer mu.Unlock()
	registry = prometheus.NewRegistry()
}

// IsEnabled reports whether metrics collection is active.
func IsEnabled() bool {
	mu.RLock()
	defer mu.RUnlock()
	return registry != nil
}

// GetRegistry returns the process-wide registry, or nil when metrics are
// disabled.
func GetRegistry() *prometheus.Registry {
	mu.RLock()
	defer mu.RUnlock()
	return registry
}

// LinkMetrics records transport-level events on a channel link.
// A nil LinkMetrics is valid and records nothing.
type LinkMetrics interface {
	// RecordConnect counts a successful socket establishment, initial or
	// reconnect.
	RecordConnect()

	// RecordDisconnect counts a socket lost for a reason other than a
	// local close.
	RecordDisconnect()

	// RecordGiveUp counts a link entering the permanently-failed state.
	RecordGiveUp()

	// RecordQueueDepth observes the outbound queue length after an enqueue.
	RecordQueueDepth(depth int)
}

// RegistryMetrics records session and quota activity on the multi-tenant
// registry. A nil RegistryMetrics is valid and records nothing.
type RegistryMetrics interface {
	// RecordSessionOpened counts a session successfully opened.
	RecordSessionOpened()

	// RecordSessionClosed counts a session removed from the registry,
	// labeled with the close reason.
	RecordSessionClosed(reason string)

	// RecordPayment observes a successfully applied payment amount.
	RecordPayment(applied int64)

	// RecordPaymentRejected counts a payment refused before reaching the
	// channel, labeled with the rejection category.
	RecordPaymentRejected(code string)

	// SetActiveSessions tracks the current number of live sessions.
	SetActiveSessions(n int)
}
