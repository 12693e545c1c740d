// Package twolevel composes a local CAS session in front of a remote one:
// reads try local first and ingest from remote on miss behind a per-hash
// fetch-lock; writes land locally first and are pushed to remote subject
// to the read-only, elision and pinning policy in Config.
package twolevel

import "time"

// Config enumerates the two-level session's read/write policy knobs.
type Config struct {
	// RemoteReadOnly suppresses all remote writes; PutStream/PutFile only
	// ever touch the local CAS.
	RemoteReadOnly bool

	// AlwaysUpdateFromRemote consults the remote session first on every
	// read and promotes its content into local even when local already
	// has it, instead of trusting a local hit outright.
	AlwaysUpdateFromRemote bool

	// SkipRemotePutIfExistsLocally suppresses the remote put for
	// ElisionTTL after a local put reports the content already existed.
	SkipRemotePutIfExistsLocally bool
	ElisionTTL                   time.Duration

	// SkipRemotePinOnPut skips the pre-put remote existence check,
	// relying on the remote upload_if_absent to fail fast instead.
	SkipRemotePinOnPut bool

	// BatchRemotePinsOnPut and the Batch* settings below are carried in
	// Config but not read by Session: every put issues its own pre-put
	// remote pin, and pins are never coalesced into batches.
	BatchRemotePinsOnPut bool
	BatchMaxSize         int
	BatchInterval        time.Duration
	BatchParallelism     int

	// TempDir, if set, stages place-then-put ingestion through a file on
	// the same volume as the local CAS instead of streaming remote
	// directly into local.
	TempDir string
}

// DefaultConfig returns a conservative policy: no read-only restriction,
// no remote-first reads, a short elision window, and no batching.
func DefaultConfig() Config {
	return Config{
		ElisionTTL:       30 * time.Second,
		BatchMaxSize:     50,
		BatchInterval:    100 * time.Millisecond,
		BatchParallelism: 4,
	}
}
