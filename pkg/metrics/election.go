package metrics

// ElectionMetrics provides observability for master-lease transitions: who
// holds the lease, how often it changes hands, and how close the local
// node is to missing a renewal.
type ElectionMetrics interface {
	// RecordTransition records a role transition, e.g. "follower"->"master".
	RecordTransition(from, to string)

	// SetLeaseRemainingSeconds updates the gauge tracking time until the
	// current lease expires, as observed by this node.
	SetLeaseRemainingSeconds(seconds float64)

	// RecordRenewalFailure records a failed try_extend call.
	RecordRenewalFailure()
}

// NewElectionMetrics returns a Prometheus-backed ElectionMetrics, or nil if
// InitRegistry has not been called.
func NewElectionMetrics() ElectionMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusElectionMetrics()
}

var newPrometheusElectionMetrics func() ElectionMetrics

// RegisterElectionMetricsConstructor is called by
// pkg/metrics/prometheus/election.go during package initialization.
func RegisterElectionMetricsConstructor(constructor func() ElectionMetrics) {
	newPrometheusElectionMetrics = constructor
}

// RecordTransition is a nil-safe wrapper for ElectionMetrics.RecordTransition.
func RecordTransition(m ElectionMetrics, from, to string) {
	if m != nil {
		m.RecordTransition(from, to)
	}
}

// SetLeaseRemainingSeconds is a nil-safe wrapper for
// ElectionMetrics.SetLeaseRemainingSeconds.
func SetLeaseRemainingSeconds(m ElectionMetrics, seconds float64) {
	if m != nil {
		m.SetLeaseRemainingSeconds(seconds)
	}
}

// RecordRenewalFailure is a nil-safe wrapper for
// ElectionMetrics.RecordRenewalFailure.
func RecordRenewalFailure(m ElectionMetrics) {
	if m != nil {
		m.RecordRenewalFailure()
	}
}
