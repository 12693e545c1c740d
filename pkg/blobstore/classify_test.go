package blobstore

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"

	"github.com/marmos91/buildcached/pkg/cacheerr"
)

type fakeAPIError struct{ code string }

func (e fakeAPIError) Error() string       { return e.code }
func (e fakeAPIError) ErrorCode() string   { return e.code }
func (e fakeAPIError) ErrorMessage() string { return e.code }
func (e fakeAPIError) ErrorFault() smithy.ErrorFault {
	return smithy.FaultUnknown
}

func TestIsRetryableError(t *testing.T) {
	assert.True(t, isRetryableError(fakeAPIError{"Throttling"}))
	assert.True(t, isRetryableError(fakeAPIError{"ServiceUnavailable"}))
	assert.False(t, isRetryableError(fakeAPIError{"NoSuchKey"}))
	assert.False(t, isRetryableError(fakeAPIError{"AccessDenied"}))
	assert.False(t, isRetryableError(nil))
	assert.False(t, isRetryableError(context.Canceled))
}

func TestIsNotFoundError(t *testing.T) {
	assert.True(t, isNotFoundError(fakeAPIError{"NoSuchKey"}))
	assert.True(t, isNotFoundError(fakeAPIError{"NotFound"}))
	assert.False(t, isNotFoundError(fakeAPIError{"AccessDenied"}))
}

func TestIsPreconditionFailedError(t *testing.T) {
	assert.True(t, isPreconditionFailedError(fakeAPIError{"PreconditionFailed"}))
	assert.False(t, isPreconditionFailedError(fakeAPIError{"NoSuchKey"}))
}

func TestClassify(t *testing.T) {
	var err error

	err = classify("GetObject", fakeAPIError{"NoSuchKey"})
	assert.True(t, cacheerr.IsNotFound(err))

	err = classify("PutObject", fakeAPIError{"PreconditionFailed"})
	assert.True(t, cacheerr.IsPreconditionFailed(err))

	err = classify("PutObject", fakeAPIError{"Throttling"})
	assert.True(t, cacheerr.IsRetryable(err))

	err = classify("PutObject", fakeAPIError{"AccessDenied"})
	code, ok := cacheerr.CodeOf(err)
	assert.True(t, ok)
	assert.Equal(t, cacheerr.Terminal, code)

	assert.Nil(t, classify("GetObject", nil))
}

func TestClassifyCancelled(t *testing.T) {
	err := classify("GetObject", errors.New("wrapped: "+context.Canceled.Error()))
	// Only an exact errors.Is(context.Canceled) match is classified as
	// Cancelled; a merely similar message falls through to Terminal.
	code, _ := cacheerr.CodeOf(err)
	assert.NotEqual(t, cacheerr.Cancelled, code)

	err = classify("GetObject", context.Canceled)
	code, _ = cacheerr.CodeOf(err)
	assert.Equal(t, cacheerr.Cancelled, code)
}
