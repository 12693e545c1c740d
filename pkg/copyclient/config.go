// Package copyclient implements the peer-to-peer copy client pool: cached
// streaming connections to other CAS servers in the fleet, used as a
// cache-miss fallback when the two-level session's own remote doesn't have
// content a peer already does.
package copyclient

import "time"

// Config configures a Pool and the Clients it hands out.
type Config struct {
	// MaxConnectionsPerPeer bounds how many concurrent connections the
	// pool keeps open to a single peer location; callers beyond this
	// bound await a lease.
	MaxConnectionsPerPeer int

	// IdleWindow is how long an unused connection is kept warm before the
	// reaper closes it.
	IdleWindow time.Duration

	// ConnectTimeout bounds dialing a new connection to a peer.
	ConnectTimeout time.Duration

	// TimeToFirstByteTimeout bounds the wait for the first response chunk
	// after a copy_file request is sent.
	TimeToFirstByteTimeout time.Duration

	// BandwidthFloorBytesPerSec is the minimum sustained transfer rate; a
	// copy observed below this floor over BandwidthCheckInterval is
	// cancelled with CopyBandwidthTimeoutError.
	BandwidthFloorBytesPerSec float64

	// BandwidthCheckInterval is how often bytes/sec is sampled during a
	// copy.
	BandwidthCheckInterval time.Duration

	// Compress is carried for configuration symmetry but is not read by
	// Pool or Client; gzip bodies are requested per call through
	// CopyOptions.CompressionHint.
	Compress bool

	// ReapInterval is how often the pool scans for idle connections to
	// evict.
	ReapInterval time.Duration
}

// DefaultConfig returns a conservative pooling and bandwidth policy.
func DefaultConfig() Config {
	return Config{
		MaxConnectionsPerPeer:     4,
		IdleWindow:                2 * time.Minute,
		ConnectTimeout:            5 * time.Second,
		TimeToFirstByteTimeout:    10 * time.Second,
		BandwidthFloorBytesPerSec: 64 * 1024,
		BandwidthCheckInterval:    time.Second,
		ReapInterval:              30 * time.Second,
	}
}
