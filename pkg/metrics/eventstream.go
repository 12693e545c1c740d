package metrics

// EventStreamMetrics provides observability for the ordered event stream:
// publish/consume throughput, per-partition lag, and dropped or
// out-of-order deliveries.
type EventStreamMetrics interface {
	// RecordPublished records a published event batch for a sender.
	RecordPublished(senderID string, batchSize int)

	// RecordDropped records a batch dropped by validation, keyed by reason
	// (e.g. "duplicate_sequence", "codec_mismatch").
	RecordDropped(reason string)

	// SetSequencePoint updates the gauge tracking the last processed
	// sequence number for a sender's partition.
	SetSequencePoint(senderID string, seq uint64)

	// RecordLagSeconds records the delay between a batch's publish time
	// and the moment it was folded into the sequence point.
	RecordLagSeconds(senderID string, seconds float64)
}

// NewEventStreamMetrics returns a Prometheus-backed EventStreamMetrics, or
// nil if InitRegistry has not been called.
func NewEventStreamMetrics() EventStreamMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusEventStreamMetrics()
}

var newPrometheusEventStreamMetrics func() EventStreamMetrics

// RegisterEventStreamMetricsConstructor is called by
// pkg/metrics/prometheus/eventstream.go during package initialization.
func RegisterEventStreamMetricsConstructor(constructor func() EventStreamMetrics) {
	newPrometheusEventStreamMetrics = constructor
}

// RecordPublished is a nil-safe wrapper for EventStreamMetrics.RecordPublished.
func RecordPublished(m EventStreamMetrics, senderID string, batchSize int) {
	if m != nil {
		m.RecordPublished(senderID, batchSize)
	}
}

// RecordDropped is a nil-safe wrapper for EventStreamMetrics.RecordDropped.
func RecordDropped(m EventStreamMetrics, reason string) {
	if m != nil {
		m.RecordDropped(reason)
	}
}

// SetSequencePoint is a nil-safe wrapper for EventStreamMetrics.SetSequencePoint.
func SetSequencePoint(m EventStreamMetrics, senderID string, seq uint64) {
	if m != nil {
		m.SetSequencePoint(senderID, seq)
	}
}

// RecordLagSeconds is a nil-safe wrapper for EventStreamMetrics.RecordLagSeconds.
func RecordLagSeconds(m EventStreamMetrics, senderID string, seconds float64) {
	if m != nil {
		m.RecordLagSeconds(senderID, seconds)
	}
}
