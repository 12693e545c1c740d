// Package cacheerr defines the error taxonomy shared by every component of
// the cache core. Components never return raw driver errors (S3 SDK
// errors, badger errors, grpc status errors) across their public API;
// they classify them into a CacheError first, so that retry loops,
// metrics, and callers share one vocabulary for "try again" versus "give
// up".
package cacheerr

import "errors"

// Code represents the category of a cache core error.
type Code int

const (
	// NotFound indicates the requested content, fingerprint, or lease does
	// not exist.
	NotFound Code = iota

	// AlreadyExists indicates a put/upload_if_absent target is already
	// present. Callers treat this as success, not failure.
	AlreadyExists

	// PreconditionFailed indicates an ETag or version check used by
	// read_modify_write did not match, so the caller must re-read and retry.
	PreconditionFailed

	// Transient indicates an infrastructure failure (timeout, connection
	// reset, throttling) that is expected to succeed on retry.
	Transient

	// Terminal indicates a failure that will not succeed on retry
	// (malformed request, permission denied, corrupt data).
	Terminal

	// BandwidthTimeout indicates a copy or download stalled below the
	// configured minimum transfer rate and was aborted.
	BandwidthTimeout

	// ContentHashMismatch indicates downloaded or verified bytes did not
	// hash to the expected ContentHash.
	ContentHashMismatch

	// Cancelled indicates the operation's context was cancelled or timed
	// out before completion.
	Cancelled
)

// String returns the lower-case name of the code, used in log fields and
// metric labels.
func (c Code) String() string {
	switch c {
	case NotFound:
		return "not_found"
	case AlreadyExists:
		return "already_exists"
	case PreconditionFailed:
		return "precondition_failed"
	case Transient:
		return "transient"
	case Terminal:
		return "terminal"
	case BandwidthTimeout:
		return "bandwidth_timeout"
	case ContentHashMismatch:
		return "content_hash_mismatch"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is the error type returned across component boundaries in the
// cache core.
type Error struct {
	// Code is the error category.
	Code Code

	// Message is a human-readable description.
	Message string

	// Context is the entity the error relates to: a blob path, a content
	// hash, a container name, a sender ID. Optional.
	Context string

	// cause is the underlying error, if this Error wraps one.
	cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Context != "" {
		msg = msg + ": " + e.Context
	}
	if e.cause != nil {
		msg = msg + ": " + e.cause.Error()
	}
	return msg
}

// Unwrap allows errors.Is/errors.As to reach the wrapped cause.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates an Error with no wrapped cause.
func New(code Code, message, context string) *Error {
	return &Error{Code: code, Message: message, Context: context}
}

// Wrap creates an Error that wraps an underlying cause, preserving it for
// errors.Is/errors.As while attaching a cache core classification.
func Wrap(code Code, message, context string, cause error) *Error {
	return &Error{Code: code, Message: message, Context: context, cause: cause}
}

// NewNotFoundError creates a NotFound error for the given context (blob
// path, strong fingerprint, container name, ...).
func NewNotFoundError(context string) *Error {
	return New(NotFound, "not found", context)
}

// NewAlreadyExistsError creates an AlreadyExists error.
func NewAlreadyExistsError(context string) *Error {
	return New(AlreadyExists, "already exists", context)
}

// NewPreconditionFailedError creates a PreconditionFailed error, reported
// when an ETag or badger transaction version check fails during
// read_modify_write or CompareExchange.
func NewPreconditionFailedError(context string) *Error {
	return New(PreconditionFailed, "precondition failed", context)
}

// NewTransientError wraps cause as a Transient error, classifying it as
// safe to retry with backoff.
func NewTransientError(message, context string, cause error) *Error {
	return Wrap(Transient, message, context, cause)
}

// NewTerminalError wraps cause as a Terminal error, classifying it as not
// retryable.
func NewTerminalError(message, context string, cause error) *Error {
	return Wrap(Terminal, message, context, cause)
}

// NewBandwidthTimeoutError creates a BandwidthTimeout error for a copy
// that stalled below the configured minimum transfer rate.
func NewBandwidthTimeoutError(peer string) *Error {
	return New(BandwidthTimeout, "transfer stalled below minimum bandwidth", peer)
}

// NewContentHashMismatchError creates a ContentHashMismatch error
// reporting the expected and observed hashes.
func NewContentHashMismatchError(expected, actual string) *Error {
	return New(ContentHashMismatch, "content hash mismatch", "expected "+expected+", got "+actual)
}

// NewCancelledError creates a Cancelled error, typically from a context's
// Err() during a blocking operation.
func NewCancelledError(context string) *Error {
	return New(Cancelled, "operation cancelled", context)
}

// CodeOf returns the Code of err if it is (or wraps) an *Error, and false
// otherwise.
func CodeOf(err error) (Code, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code, true
	}
	return 0, false
}

// IsRetryable reports whether err is classified as Transient. Callers
// retrying a read_modify_write or blobstore operation should loop on this,
// not on PreconditionFailed, which requires a fresh read before retrying.
func IsRetryable(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == Transient
}

// IsNotFound reports whether err is classified as NotFound.
func IsNotFound(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == NotFound
}

// IsAlreadyExists reports whether err is classified as AlreadyExists.
func IsAlreadyExists(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == AlreadyExists
}

// IsPreconditionFailed reports whether err is classified as PreconditionFailed.
func IsPreconditionFailed(err error) bool {
	code, ok := CodeOf(err)
	return ok && code == PreconditionFailed
}
