// Package localcas implements the cache core's on-disk content-addressed
// store: a single local root directory holding one file per ContentHash,
// an advisory lock preventing two processes from opening the same root,
// a last-access journal backing LRU eviction, and the put/open/pin
// surface the two-level cache session composes with a remote CAS.
package localcas

import "time"

// Config configures a Store.
type Config struct {
	// RootDir is the local filesystem directory holding cached content,
	// one file per blob path under RootDir.
	RootDir string

	// MaxSizeBytes bounds the store's on-disk footprint. 0 disables GC.
	MaxSizeBytes int64

	// GCTargetFraction is the fraction of MaxSizeBytes a GC pass evicts
	// down to, so a pass doesn't immediately re-trigger on the next write.
	GCTargetFraction float64

	// GCInterval is not read by Store, which runs no background GC loop:
	// eviction runs after a put leaves the store above MaxSizeBytes, and
	// when EvictToTarget is called.
	GCInterval time.Duration

	// TouchThreshold protects any blob whose last access is more recent
	// than this from eviction, regardless of size pressure, per spec.md
	// §4.3 ("a blob younger than touch_threshold MUST NOT be evicted").
	TouchThreshold time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(rootDir string, maxSizeBytes int64) Config {
	return Config{
		RootDir:          rootDir,
		MaxSizeBytes:     maxSizeBytes,
		GCTargetFraction: 0.9,
		GCInterval:       5 * time.Minute,
		TouchThreshold:   24 * time.Hour,
	}
}
