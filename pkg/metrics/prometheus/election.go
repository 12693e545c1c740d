package prometheus

import (
	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterElectionMetricsConstructor(func() metrics.ElectionMetrics {
		return newElectionMetrics()
	})
}

// electionMetrics is the Prometheus implementation of metrics.ElectionMetrics.
type electionMetrics struct {
	transitions     *prometheus.CounterVec
	leaseRemaining  prometheus.Gauge
	renewalFailures prometheus.Counter
}

func newElectionMetrics() *electionMetrics {
	reg := metrics.GetRegistry()

	return &electionMetrics{
		transitions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_election_transitions_total",
			Help: "Total master-lease role transitions by from/to role",
		}, []string{"from", "to"}),
		leaseRemaining: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "buildcache_election_lease_remaining_seconds",
			Help: "Seconds remaining until the current lease expires, as observed locally",
		}),
		renewalFailures: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "buildcache_election_renewal_failures_total",
			Help: "Total failed try_extend calls",
		}),
	}
}

func (m *electionMetrics) RecordTransition(from, to string) {
	m.transitions.WithLabelValues(from, to).Inc()
}

func (m *electionMetrics) SetLeaseRemainingSeconds(seconds float64) {
	m.leaseRemaining.Set(seconds)
}

func (m *electionMetrics) RecordRenewalFailure() {
	m.renewalFailures.Inc()
}
