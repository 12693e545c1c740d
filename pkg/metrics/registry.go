// Package metrics defines Prometheus-backed observability interfaces for
// the cache core's components. Each component package (localcas, memo,
// election, eventstream, copyclient) depends only on the small interface
// declared here; the concrete Prometheus collectors live in
// pkg/metrics/prometheus and register themselves at init time through a
// constructor indirection, which keeps this package free of a dependency
// on any component package and avoids import cycles.
package metrics

import (
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mu       sync.Mutex
	registry *prometheus.Registry
	enabled  atomic.Bool
)

// InitRegistry creates the process-wide Prometheus registry used by every
// component's metrics constructor. Safe to call multiple times; only the
// first call takes effect.
func InitRegistry() *prometheus.Registry {
	mu.Lock()
	defer mu.Unlock()

	if registry == nil {
		registry = prometheus.NewRegistry()
		enabled.Store(true)
	}
	return registry
}

// IsEnabled reports whether InitRegistry has been called.
func IsEnabled() bool {
	return enabled.Load()
}

// GetRegistry returns the process-wide registry, creating it if necessary.
func GetRegistry() *prometheus.Registry {
	if registry == nil {
		return InitRegistry()
	}
	return registry
}

// Reset tears down the registry. Intended for tests that need a clean
// collector namespace between cases.
func Reset() {
	mu.Lock()
	defer mu.Unlock()

	registry = nil
	enabled.Store(false)
}
