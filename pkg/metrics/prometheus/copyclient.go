package prometheus

import (
	"time"

	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterCopyClientMetricsConstructor(func() metrics.CopyClientMetrics {
		return newCopyClientMetrics()
	})
}

// copyClientMetrics is the Prometheus implementation of metrics.CopyClientMetrics.
type copyClientMetrics struct {
	copyDuration      *prometheus.HistogramVec
	copyBytes         *prometheus.CounterVec
	copyTotal         *prometheus.CounterVec
	bandwidthStalls   *prometheus.CounterVec
	activeConnections *prometheus.GaugeVec
}

func newCopyClientMetrics() *copyClientMetrics {
	reg := metrics.GetRegistry()

	return &copyClientMetrics{
		copyDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buildcache_copyclient_duration_milliseconds",
			Help:    "Duration of peer-to-peer copy calls by peer",
			Buckets: prometheus.ExponentialBuckets(1, 3, 12),
		}, []string{"peer"}),
		copyBytes: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_copyclient_bytes_total",
			Help: "Total bytes copied to/from peers",
		}, []string{"peer"}),
		copyTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_copyclient_operations_total",
			Help: "Total copy operations by peer and outcome",
		}, []string{"peer", "outcome"}),
		bandwidthStalls: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_copyclient_bandwidth_stalls_total",
			Help: "Total copies aborted for falling below the minimum bandwidth threshold",
		}, []string{"peer"}),
		activeConnections: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "buildcache_copyclient_active_connections",
			Help: "Checked-out pool connections per peer",
		}, []string{"peer"}),
	}
}

func (m *copyClientMetrics) ObserveCopy(peer string, bytes int64, duration time.Duration, err error) {
	m.copyDuration.WithLabelValues(peer).Observe(float64(duration.Milliseconds()))
	m.copyBytes.WithLabelValues(peer).Add(float64(bytes))
	m.copyTotal.WithLabelValues(peer, successLabel(err == nil)).Inc()
}

func (m *copyClientMetrics) RecordBandwidthStall(peer string) {
	m.bandwidthStalls.WithLabelValues(peer).Inc()
}

func (m *copyClientMetrics) SetActiveConnections(peer string, count int) {
	m.activeConnections.WithLabelValues(peer).Set(float64(count))
}
