// Package election implements master election over a single well-known
// blob: one MasterLease record guarded by the backing blobstore's
// conditional write, so at most one participant can hold the lease at a
// time, built on pkg/blobstore.ReadModifyWrite's optimistic-concurrency
// read-mutate-write cycle.
package election

import "time"

// Config configures a Participant.
type Config struct {
	// Container and Key locate the lease blob: {Container}/{Key}.
	Container string
	Key       string

	// Me is this participant's identity, written into the lease when it
	// becomes master.
	Me string

	// Eligible reports whether this participant may ever become master.
	// An ineligible participant's get_role() never attempts to extend the
	// lease; it only observes the current one.
	Eligible bool

	// LeaseExpiry is how long a lease this participant acquires remains
	// valid without renewal. Must be strictly greater than HeartbeatInterval.
	LeaseExpiry time.Duration

	// HeartbeatInterval is how often the caller calls GetRole to renew.
	// Participant neither schedules it nor checks it against LeaseExpiry;
	// cmd/buildcached uses it to pace its election loop.
	HeartbeatInterval time.Duration

	// MaxAttempts bounds the read_modify_write retry loop against the
	// lease blob.
	MaxAttempts int
}

// DefaultConfig returns sensible defaults: a 10 minute lease, matching the
// default chosen to cover worst-case offline periods.
func DefaultConfig(container, me string) Config {
	return Config{
		Container:         container,
		Key:               "master.json",
		Me:                me,
		Eligible:          true,
		LeaseExpiry:       10 * time.Minute,
		HeartbeatInterval: time.Minute,
		MaxAttempts:       5,
	}
}
