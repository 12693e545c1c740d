package eventstream

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// isRetryableSendError classifies a Transport.Send failure as retryable
// (transient network, timeout, throttling) or terminal (authorization,
// schema), mirroring pkg/blobstore's classify.go for the storage adapter.
func isRetryableSendError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted,
			codes.Aborted, codes.Internal:
			return true
		case codes.Unauthenticated:
			// Treated as transient: a refreshable credential provider is
			// out of this module's scope, but a caller that retries after
			// a refresh should not have to distinguish this from any
			// other transient failure.
			return true
		case codes.Unimplemented, codes.InvalidArgument, codes.PermissionDenied,
			codes.FailedPrecondition, codes.NotFound:
			return false
		}
	}
	return true
}
