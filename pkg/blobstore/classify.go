package blobstore

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/marmos91/buildcached/pkg/cacheerr"
)

// isRetryableError reports whether err is a transient S3/network failure
// that should be retried with backoff.
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "Throttling", "ThrottlingException", "RequestThrottled", "SlowDown",
			"ProvisionedThroughputExceededException":
			return true
		case "InternalError", "ServiceUnavailable", "ServiceException", "InternalServiceException":
			return true
		case "NoSuchKey", "NoSuchBucket", "NotFound", "AccessDenied", "Forbidden",
			"InvalidRange", "InvalidRequest", "BucketAlreadyOwnedByYou", "BucketAlreadyExists":
			return false
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "i/o timeout") ||
		strings.Contains(errStr, "temporary failure") ||
		strings.Contains(errStr, "503") ||
		strings.Contains(errStr, "500")
}

// isNotFoundError reports whether err indicates the object or bucket
// doesn't exist.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) || errors.As(err, &noSuchBucket) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NoSuchKey", "NoSuchBucket", "NotFound", "404":
			return true
		}
	}

	errStr := err.Error()
	return strings.Contains(errStr, "StatusCode: 404") ||
		strings.Contains(errStr, "NotFound") ||
		strings.Contains(errStr, "NoSuchKey")
}

// isAlreadyExistsError reports whether err indicates the target (bucket or
// object, under an If-None-Match precondition) already exists.
func isAlreadyExistsError(err error) bool {
	if err == nil {
		return false
	}

	var alreadyOwned *types.BucketAlreadyOwnedByYou
	var alreadyExists *types.BucketAlreadyExists
	if errors.As(err, &alreadyOwned) || errors.As(err, &alreadyExists) {
		return true
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "BucketAlreadyOwnedByYou", "BucketAlreadyExists", "PreconditionFailed":
			return true
		}
	}
	return false
}

// isPreconditionFailedError reports whether err is an S3 conditional-write
// rejection (If-Match/If-None-Match mismatch), used by ReadModifyWrite to
// detect a concurrent writer winning the race.
func isPreconditionFailedError(err error) bool {
	if err == nil {
		return false
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode() == "PreconditionFailed"
	}
	return strings.Contains(err.Error(), "PreconditionFailed") || strings.Contains(err.Error(), "412")
}

// classify translates a raw S3/SDK error into the cache core's error
// taxonomy, the boundary every public Store method crosses through.
func classify(operation string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return cacheerr.NewCancelledError(operation)
	}
	if isNotFoundError(err) {
		return cacheerr.Wrap(cacheerr.NotFound, operation, "", err)
	}
	if isPreconditionFailedError(err) {
		return cacheerr.Wrap(cacheerr.PreconditionFailed, operation, "", err)
	}
	if isAlreadyExistsError(err) {
		return cacheerr.Wrap(cacheerr.AlreadyExists, operation, "", err)
	}
	if isRetryableError(err) {
		return cacheerr.NewTransientError(operation, "", err)
	}
	return cacheerr.NewTerminalError(operation, "", err)
}
