// Package blobstore implements the cache core's blob storage adapter: an
// S3-backed key/value surface over containers (buckets), with
// optimistic-concurrency read_modify_write built on ETag preconditions.
// The remote CAS session and the master election lease read and write
// through this adapter rather than talking to S3 directly; the local CAS
// and the badger-backed memoization store keep their data on local disk
// and do not use it.
package blobstore

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/marmos91/buildcached/pkg/metrics"
)

// Config configures a Store.
type Config struct {
	// Region is the AWS region for the underlying S3 client.
	Region string

	// Endpoint overrides the default S3 endpoint, for S3-compatible
	// backends (MinIO, etc.) used in local development and tests.
	Endpoint string

	// ForcePathStyle is required by most S3-compatible endpoints that
	// don't support virtual-hosted-style addressing.
	ForcePathStyle bool

	// MaxRetries bounds the number of attempts for a single call,
	// including the first.
	MaxRetries int

	// InitialBackoff is the delay before the first retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the exponential backoff delay.
	MaxBackoff time.Duration
}

// DefaultConfig returns sensible defaults matching the retry behavior the
// rest of the cache core assumes.
func DefaultConfig() Config {
	return Config{
		Region:         "us-east-1",
		MaxRetries:     5,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
	}
}

// Store is the blob storage adapter. One Store talks to one S3 endpoint;
// containers are addressed per call, not fixed at construction.
type Store struct {
	client  *s3.Client
	cfg     Config
	metrics metrics.BlobstoreMetrics
}

// New constructs a Store from cfg, loading AWS credentials from the
// environment/config chain the way every AWS SDK v2 client does.
func New(ctx context.Context, cfg Config, m metrics.BlobstoreMetrics) (*Store, error) {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.ForcePathStyle
	})

	return &Store{client: client, cfg: cfg, metrics: m}, nil
}

// NewFromClient wraps a pre-constructed S3 client, used by tests against a
// fake or in-process S3-compatible server.
func NewFromClient(client *s3.Client, cfg Config, m metrics.BlobstoreMetrics) *Store {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	return &Store{client: client, cfg: cfg, metrics: m}
}

// EnsureContainer creates the backing bucket if it does not already exist.
// Containers map 1:1 to S3 buckets.
func (s *Store) EnsureContainer(ctx context.Context, container string) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(container)})
	if err == nil {
		return nil
	}
	if !isNotFoundError(err) {
		return classify("HeadBucket", err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: aws.String(container)})
	if err != nil && !isAlreadyExistsError(err) {
		return classify("CreateBucket", err)
	}
	return nil
}
