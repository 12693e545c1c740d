package blobstore

import (
	"bytes"
	"context"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// Exists reports whether key is present in container.
func (s *Store) Exists(ctx context.Context, container, key string) (bool, error) {
	var exists bool
	err := s.withRetry(ctx, "HeadObject", func() error {
		_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
		})
		if err == nil {
			exists = true
			return nil
		}
		if isNotFoundError(err) {
			exists = false
			return nil
		}
		return err
	})
	if cacheerr.IsNotFound(err) {
		return false, nil
	}
	return exists, err
}

// Stat returns key's size without downloading its content. Returns
// cacheerr.NotFound if key does not exist.
func (s *Store) Stat(ctx context.Context, container, key string) (size int64, err error) {
	err = s.withRetry(ctx, "HeadObject", func() error {
		out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		if out.ContentLength != nil {
			size = *out.ContentLength
		}
		return nil
	})
	return size, err
}

// OpenRead returns a reader for key's content along with its current
// ETag, so callers that will later read_modify_write have a version to
// compare against.
func (s *Store) OpenRead(ctx context.Context, container, key string) (io.ReadCloser, string, error) {
	var body io.ReadCloser
	var etag string

	err := s.withRetry(ctx, "GetObject", func() error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(container),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		body = out.Body
		if out.ETag != nil {
			etag = *out.ETag
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return body, etag, nil
}

// UploadIfAbsent uploads content under key only if no object currently
// exists there. Returns (existed=true, nil) without uploading if the key
// was already present — this is the linearizable guarantee the remote CAS
// put path relies on to avoid clobbering concurrently-written content that
// hashes the same.
func (s *Store) UploadIfAbsent(ctx context.Context, container, key string, content io.Reader, size int64) (existed bool, err error) {
	buf, err := io.ReadAll(content)
	if err != nil {
		return false, cacheerr.NewTerminalError("read upload content", key, err)
	}

	putErr := s.withRetry(ctx, "PutObject", func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(container),
			Key:         aws.String(key),
			Body:        bytes.NewReader(buf),
			IfNoneMatch: aws.String("*"),
		})
		return err
	})

	metrics.RecordBytes(s.metrics, "write", int64(len(buf)))

	if cacheerr.IsPreconditionFailed(putErr) || cacheerr.IsAlreadyExists(putErr) {
		return true, nil
	}
	return false, putErr
}

// Touch updates key's last-modified metadata without changing its
// content, used to keep content alive against a GC sweep that evicts by
// last-access time. Implemented as a self-copy, the standard S3 idiom for
// refreshing an object's timestamp in place.
func (s *Store) Touch(ctx context.Context, container, key string) error {
	source := container + "/" + key
	return s.withRetry(ctx, "CopyObject", func() error {
		_, err := s.client.CopyObject(ctx, &s3.CopyObjectInput{
			Bucket:            aws.String(container),
			Key:               aws.String(key),
			CopySource:        aws.String(source),
			MetadataDirective: "REPLACE",
		})
		return err
	})
}
