package prometheus

import (
	"time"

	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterLocalCASMetricsConstructor(func() metrics.LocalCASMetrics {
		return newLocalCASMetrics()
	})
}

// localCASMetrics is the Prometheus implementation of metrics.LocalCASMetrics.
type localCASMetrics struct {
	writeDuration  prometheus.Histogram
	writeBytes     prometheus.Histogram
	readDuration   prometheus.Histogram
	readBytes      prometheus.Histogram
	containsTotal  *prometheus.CounterVec
	pinTotal       *prometheus.CounterVec
	evictionBytes  prometheus.Counter
	evictionCount  prometheus.Counter
	currentSize    prometheus.Gauge
}

func newLocalCASMetrics() *localCASMetrics {
	reg := metrics.GetRegistry()

	sizeBuckets := []float64{4096, 32768, 131072, 524288, 1048576, 4194304, 10485760, 104857600}

	return &localCASMetrics{
		writeDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "buildcache_localcas_write_duration_milliseconds",
			Help:    "Duration of local CAS put_stream/put_file calls in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		writeBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "buildcache_localcas_write_bytes",
			Help:    "Distribution of bytes written to local CAS",
			Buckets: sizeBuckets,
		}),
		readDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "buildcache_localcas_read_duration_milliseconds",
			Help:    "Duration of local CAS open_stream/place_file calls in milliseconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 4, 10),
		}),
		readBytes: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "buildcache_localcas_read_bytes",
			Help:    "Distribution of bytes read from local CAS",
			Buckets: sizeBuckets,
		}),
		containsTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_localcas_contains_total",
			Help: "Total contains() probes by outcome",
		}, []string{"outcome"}), // "hit", "miss"
		pinTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_localcas_pin_total",
			Help: "Total pin() calls by outcome",
		}, []string{"outcome"}),
		evictionBytes: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "buildcache_localcas_eviction_bytes_total",
			Help: "Total bytes reclaimed by local CAS GC passes",
		}),
		evictionCount: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "buildcache_localcas_eviction_entries_total",
			Help: "Total content entries removed by local CAS GC passes",
		}),
		currentSize: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "buildcache_localcas_size_bytes",
			Help: "Current total bytes occupied by the local CAS root",
		}),
	}
}

func (m *localCASMetrics) ObserveWrite(bytes int64, duration time.Duration) {
	m.writeDuration.Observe(float64(duration.Microseconds()) / 1000.0)
	m.writeBytes.Observe(float64(bytes))
}

func (m *localCASMetrics) ObserveRead(bytes int64, duration time.Duration) {
	m.readDuration.Observe(float64(duration.Microseconds()) / 1000.0)
	m.readBytes.Observe(float64(bytes))
}

func (m *localCASMetrics) RecordContains(hit bool) {
	m.containsTotal.WithLabelValues(outcomeLabel(hit)).Inc()
}

func (m *localCASMetrics) RecordPin(hit bool) {
	m.pinTotal.WithLabelValues(outcomeLabel(hit)).Inc()
}

func (m *localCASMetrics) RecordEviction(bytesReclaimed int64, entriesRemoved int) {
	m.evictionBytes.Add(float64(bytesReclaimed))
	m.evictionCount.Add(float64(entriesRemoved))
}

func (m *localCASMetrics) SetCurrentSize(bytes int64) {
	m.currentSize.Set(float64(bytes))
}

func outcomeLabel(hit bool) string {
	if hit {
		return "hit"
	}
	return "miss"
}

func successLabel(ok bool) string {
	if ok {
		return "success"
	}
	return "error"
}
