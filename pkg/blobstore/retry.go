package blobstore

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// withRetry runs op, retrying classified Transient failures with
// exponential backoff up to s.cfg.MaxRetries attempts. Non-transient
// classifications (NotFound, AlreadyExists, PreconditionFailed, Terminal,
// Cancelled) are returned immediately.
func (s *Store) withRetry(ctx context.Context, operation string, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.cfg.InitialBackoff
	policy.MaxInterval = s.cfg.MaxBackoff
	policy.MaxElapsedTime = 0 // bounded by attempt count instead

	attempt := 0
	bounded := backoff.WithMaxRetries(policy, uint64(max(s.cfg.MaxRetries-1, 0)))

	return backoff.RetryNotify(func() error {
		attempt++
		start := time.Now()
		err := op()
		classified := classify(operation, err)
		metrics.ObserveOperation(s.metrics, operation, time.Since(start), classified)

		if classified == nil {
			return nil
		}
		if cacheerr.IsRetryable(classified) {
			return classified
		}
		return backoff.Permanent(classified)
	}, backoff.WithContext(bounded, ctx), func(err error, wait time.Duration) {
		if s.metrics != nil {
			kind, _ := cacheerr.CodeOf(err)
			s.metrics.RecordRetry(operation, attempt, kind.String())
		}
	})
}
