package metrics

import "time"

// LocalCASMetrics provides observability for the local content-addressed
// store: put/open/place throughput, pin and eviction activity, and the
// current on-disk footprint against the configured GC target.
//
// Pass nil to disable metrics collection with zero overhead.
type LocalCASMetrics interface {
	// ObserveWrite records a put_stream or put_file completion.
	ObserveWrite(bytes int64, duration time.Duration)

	// ObserveRead records an open_stream or place_file completion.
	ObserveRead(bytes int64, duration time.Duration)

	// RecordContains records a contains() probe outcome.
	RecordContains(hit bool)

	// RecordPin records a pin() call and whether it found existing content.
	RecordPin(hit bool)

	// RecordEviction records bytes reclaimed by one GC pass.
	RecordEviction(bytesReclaimed int64, entriesRemoved int)

	// SetCurrentSize updates the gauge tracking total bytes on disk.
	SetCurrentSize(bytes int64)
}

// NewLocalCASMetrics returns a Prometheus-backed LocalCASMetrics, or nil if
// InitRegistry has not been called.
func NewLocalCASMetrics() LocalCASMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusLocalCASMetrics()
}

var newPrometheusLocalCASMetrics func() LocalCASMetrics

// RegisterLocalCASMetricsConstructor is called by
// pkg/metrics/prometheus/localcas.go during package initialization.
func RegisterLocalCASMetricsConstructor(constructor func() LocalCASMetrics) {
	newPrometheusLocalCASMetrics = constructor
}

// ObserveWrite is a nil-safe wrapper for LocalCASMetrics.ObserveWrite.
func ObserveWrite(m LocalCASMetrics, bytes int64, duration time.Duration) {
	if m != nil {
		m.ObserveWrite(bytes, duration)
	}
}

// ObserveRead is a nil-safe wrapper for LocalCASMetrics.ObserveRead.
func ObserveRead(m LocalCASMetrics, bytes int64, duration time.Duration) {
	if m != nil {
		m.ObserveRead(bytes, duration)
	}
}
