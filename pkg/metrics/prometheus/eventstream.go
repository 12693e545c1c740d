package prometheus

import (
	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterEventStreamMetricsConstructor(func() metrics.EventStreamMetrics {
		return newEventStreamMetrics()
	})
}

// eventStreamMetrics is the Prometheus implementation of metrics.EventStreamMetrics.
type eventStreamMetrics struct {
	published     *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	sequencePoint *prometheus.GaugeVec
	lagSeconds    *prometheus.HistogramVec
}

func newEventStreamMetrics() *eventStreamMetrics {
	reg := metrics.GetRegistry()

	return &eventStreamMetrics{
		published: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_eventstream_published_total",
			Help: "Total events published by sender, summed over batches",
		}, []string{"sender_id"}),
		dropped: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_eventstream_dropped_total",
			Help: "Total event batches dropped by validation, by reason",
		}, []string{"reason"}),
		sequencePoint: promauto.With(reg).NewGaugeVec(prometheus.GaugeOpts{
			Name: "buildcache_eventstream_sequence_point",
			Help: "Last processed sequence number per sender partition",
		}, []string{"sender_id"}),
		lagSeconds: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buildcache_eventstream_lag_seconds",
			Help:    "Delay between a batch's publish time and its sequence-point advance",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"sender_id"}),
	}
}

func (m *eventStreamMetrics) RecordPublished(senderID string, batchSize int) {
	m.published.WithLabelValues(senderID).Add(float64(batchSize))
}

func (m *eventStreamMetrics) RecordDropped(reason string) {
	m.dropped.WithLabelValues(reason).Inc()
}

func (m *eventStreamMetrics) SetSequencePoint(senderID string, seq uint64) {
	m.sequencePoint.WithLabelValues(senderID).Set(float64(seq))
}

func (m *eventStreamMetrics) RecordLagSeconds(senderID string, seconds float64) {
	m.lagSeconds.WithLabelValues(senderID).Observe(seconds)
}
