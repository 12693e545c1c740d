package blobstore

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/buildcached/pkg/cacheerr"
)

// MutateFunc transforms the current content of a key (nil if the key does
// not yet exist) into its replacement. Returning ErrNoChange aborts the
// write without consuming a CAS attempt.
type MutateFunc func(current []byte) (next []byte, err error)

// ErrNoChange, returned by a MutateFunc, tells ReadModifyWrite the key
// should be left untouched.
var ErrNoChange = cacheerr.New(cacheerr.Terminal, "no change requested", "")

// ReadModifyWrite implements optimistic-concurrency read-then-write: it
// reads key's current content and ETag, calls mutate, and writes the
// result back with an If-Match precondition on the ETag observed at read
// time (If-None-Match: * when the key didn't exist). A concurrent writer
// winning the race surfaces as cacheerr.PreconditionFailed; this function
// retries the whole read-mutate-write cycle internally up to maxAttempts
// times before giving up, which is what the master election lease builds
// on.
func (s *Store) ReadModifyWrite(ctx context.Context, container, key string, maxAttempts int, mutate MutateFunc) error {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		current, etag, readErr := s.readCurrent(ctx, container, key)
		if readErr != nil && !cacheerr.IsNotFound(readErr) {
			return readErr
		}

		next, mutateErr := mutate(current)
		if mutateErr == ErrNoChange {
			return nil
		}
		if mutateErr != nil {
			return mutateErr
		}

		writeErr := s.conditionalPut(ctx, container, key, etag, next)
		if writeErr == nil {
			return nil
		}
		if !cacheerr.IsPreconditionFailed(writeErr) {
			return writeErr
		}
		if s.metrics != nil {
			s.metrics.RecordPreconditionFailed(key)
		}
		// Lost the race: loop and re-read the new current value.
	}

	return cacheerr.New(cacheerr.PreconditionFailed, "read_modify_write exhausted attempts", key)
}

func (s *Store) readCurrent(ctx context.Context, container, key string) ([]byte, string, error) {
	body, etag, err := s.OpenRead(ctx, container, key)
	if err != nil {
		return nil, "", err
	}
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, "", cacheerr.NewTerminalError("read current value", key, err)
	}
	return data, etag, nil
}

func (s *Store) conditionalPut(ctx context.Context, container, key, etag string, content []byte) error {
	return s.withRetryNoBackoffOnPrecondition(ctx, "PutObject", func() error {
		input := &s3.PutObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
			Body:   bytes.NewReader(content),
		}
		if etag == "" {
			input.IfNoneMatch = aws.String("*")
		} else {
			input.IfMatch = aws.String(etag)
		}
		_, err := s.client.PutObject(ctx, input)
		return err
	})
}

// withRetryNoBackoffOnPrecondition retries Transient failures the way
// withRetry does, but surfaces PreconditionFailed to the caller on the
// first occurrence instead of retrying internally — the caller (here,
// ReadModifyWrite) is the one positioned to re-read and build a fresh
// mutation, not this helper.
func (s *Store) withRetryNoBackoffOnPrecondition(ctx context.Context, operation string, op func() error) error {
	err := op()
	classified := classify(operation, err)
	if classified == nil {
		return nil
	}
	if cacheerr.IsPreconditionFailed(classified) {
		return classified
	}
	if !cacheerr.IsRetryable(classified) {
		return classified
	}
	return s.withRetry(ctx, operation, op)
}
