package memo

import "github.com/marmos91/buildcached/pkg/cacheerr"

// SinglePhaseMixingError is returned when add_or_get's new value and the
// existing entry disagree on whether they came from a single-phase,
// known-nondeterministic build action — mixing the two within one
// StrongFingerprint would make the cache's behavior depend on which
// writer happened to land first.
func SinglePhaseMixingError(fingerprint string) error {
	return cacheerr.New(cacheerr.Terminal, "memo: single-phase determinism mismatch", fingerprint)
}

// InvalidToolDeterminismError is returned when add_or_get's new value
// claims tool-level determinism but its content disagrees with the
// existing entry — a deterministic tool should never produce two
// different outputs for the same StrongFingerprint.
func InvalidToolDeterminismError(fingerprint string) error {
	return cacheerr.New(cacheerr.Terminal, "memo: deterministic tool produced conflicting output", fingerprint)
}

// RaceExhaustedError is returned when add_or_get's compare-exchange retry
// loop loses MaxAttempts times in a row to concurrent writers.
func RaceExhaustedError(fingerprint string) error {
	return cacheerr.New(cacheerr.Transient, "memo: add_or_get exhausted compare-exchange attempts", fingerprint)
}
