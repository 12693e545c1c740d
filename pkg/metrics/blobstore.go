package metrics

import "time"

// BlobstoreMetrics provides observability for the S3-backed blob storage
// adapter: per-operation duration and outcome, bytes transferred, and
// retry/backoff activity for read_modify_write and upload_if_absent.
type BlobstoreMetrics interface {
	// ObserveOperation records a blob storage operation (GetObject,
	// PutObject, CopyObject, ...) with its duration and outcome.
	ObserveOperation(operation string, duration time.Duration, err error)

	// RecordBytes records bytes transferred for a read or write operation.
	RecordBytes(operation string, bytes int64)

	// RecordRetry records a retried operation, its attempt number, and the
	// classified error kind that triggered the retry.
	RecordRetry(operation string, attempt int, kind string)

	// RecordPreconditionFailed records an ETag mismatch during
	// read_modify_write, which forces the caller to re-read and retry.
	RecordPreconditionFailed(operation string)
}

// NewBlobstoreMetrics returns a Prometheus-backed BlobstoreMetrics, or nil
// if InitRegistry has not been called.
func NewBlobstoreMetrics() BlobstoreMetrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusBlobstoreMetrics()
}

var newPrometheusBlobstoreMetrics func() BlobstoreMetrics

// RegisterBlobstoreMetricsConstructor is called by
// pkg/metrics/prometheus/blobstore.go during package initialization.
func RegisterBlobstoreMetricsConstructor(constructor func() BlobstoreMetrics) {
	newPrometheusBlobstoreMetrics = constructor
}

// ObserveOperation is a nil-safe wrapper for BlobstoreMetrics.ObserveOperation.
func ObserveOperation(m BlobstoreMetrics, operation string, duration time.Duration, err error) {
	if m != nil {
		m.ObserveOperation(operation, duration, err)
	}
}

// RecordBytes is a nil-safe wrapper for BlobstoreMetrics.RecordBytes.
func RecordBytes(m BlobstoreMetrics, operation string, bytes int64) {
	if m != nil {
		m.RecordBytes(operation, bytes)
	}
}
