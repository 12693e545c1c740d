package prometheus

import (
	"time"

	"github.com/marmos91/buildcached/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func init() {
	metrics.RegisterBlobstoreMetricsConstructor(func() metrics.BlobstoreMetrics {
		return newBlobstoreMetrics()
	})
}

// blobstoreMetrics is the Prometheus implementation of metrics.BlobstoreMetrics.
type blobstoreMetrics struct {
	opDuration           *prometheus.HistogramVec
	opTotal              *prometheus.CounterVec
	bytesTotal           *prometheus.CounterVec
	retryTotal           *prometheus.CounterVec
	preconditionFailures *prometheus.CounterVec
}

func newBlobstoreMetrics() *blobstoreMetrics {
	reg := metrics.GetRegistry()

	return &blobstoreMetrics{
		opDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "buildcache_blobstore_operation_duration_milliseconds",
			Help:    "Duration of blob storage operations by operation name",
			Buckets: prometheus.ExponentialBuckets(0.5, 3, 10),
		}, []string{"operation"}),
		opTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_blobstore_operations_total",
			Help: "Total blob storage operations by operation name and outcome",
		}, []string{"operation", "outcome"}),
		bytesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_blobstore_bytes_total",
			Help: "Total bytes transferred to/from blob storage by operation",
		}, []string{"operation"}),
		retryTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_blobstore_retries_total",
			Help: "Total retried blob storage operations by operation and error kind",
		}, []string{"operation", "kind"}),
		preconditionFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "buildcache_blobstore_precondition_failed_total",
			Help: "Total ETag precondition failures during read_modify_write",
		}, []string{"operation"}),
	}
}

func (m *blobstoreMetrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.opDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000.0)
	m.opTotal.WithLabelValues(operation, successLabel(err == nil)).Inc()
}

func (m *blobstoreMetrics) RecordBytes(operation string, bytes int64) {
	m.bytesTotal.WithLabelValues(operation).Add(float64(bytes))
}

func (m *blobstoreMetrics) RecordRetry(operation string, attempt int, kind string) {
	m.retryTotal.WithLabelValues(operation, kind).Inc()
}

func (m *blobstoreMetrics) RecordPreconditionFailed(operation string) {
	m.preconditionFailures.WithLabelValues(operation).Inc()
}
