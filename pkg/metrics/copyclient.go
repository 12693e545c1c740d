package metrics

import "time"

// CopyClientMetrics provides observability for the peer-to-peer copy
// client pool: per-peer throughput, bandwidth stalls, and pool occupancy.
type CopyClientMetrics interface {
	// ObserveCopy records a completed copy_file/push_file call.
	ObserveCopy(peer string, bytes int64, duration time.Duration, err error)

	// RecordBandwidthStall records a copy aborted for falling below the
	// configured minimum bytes-per-second threshold.
	RecordBandwidthStall(peer string)

	// SetActiveConnections updates the gauge tracking checked-out pool
	// connections for a peer.
	SetActiveConnections(peer string, count int)
}

// NewCopyClientMetrics returns a Prometheus-backed CopyClientMetrics, or
// nil if InitRegistry has not been called.
func NewCopyClientMetrics() CopyClientMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusCopyClientMetrics()
}

var newPrometheusCopyClientMetrics func() CopyClientMetrics

// RegisterCopyClientMetricsConstructor is called by
// pkg/metrics/prometheus/copyclient.go during package initialization.
func RegisterCopyClientMetricsConstructor(constructor func() CopyClientMetrics) {
	newPrometheusCopyClientMetrics = constructor
}

// ObserveCopy is a nil-safe wrapper for CopyClientMetrics.ObserveCopy.
func ObserveCopy(m CopyClientMetrics, peer string, bytes int64, duration time.Duration, err error) {
	if m != nil {
		m.ObserveCopy(peer, bytes, duration, err)
	}
}

// RecordBandwidthStall is a nil-safe wrapper for CopyClientMetrics.RecordBandwidthStall.
func RecordBandwidthStall(m CopyClientMetrics, peer string) {
	if m != nil {
		m.RecordBandwidthStall(peer)
	}
}

// SetActiveConnections is a nil-safe wrapper for CopyClientMetrics.SetActiveConnections.
func SetActiveConnections(m CopyClientMetrics, peer string, count int) {
	if m != nil {
		m.SetActiveConnections(peer, count)
	}
}
