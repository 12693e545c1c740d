// Package memo implements the cache core's memoization store: the mapping
// from a build action's StrongFingerprint to its memoized output content
// hashes, backed by BadgerDB the same way pkg/localcas backs its
// last-access journal. add_or_get resolves concurrent writers through a
// bounded compare-exchange retry loop guided by the determinism partial
// order in pkg/cachetypes.
package memo

// ReplacementPolicy governs step 4 of add_or_get when neither the entry is
// missing nor the new value's determinism strictly dominates the old: it
// decides whether a competing write is still allowed to replace an
// existing entry.
type ReplacementPolicy int

const (
	// ReplaceAlways permits replacement unconditionally.
	ReplaceAlways ReplacementPolicy = iota

	// ReplaceNever never permits replacement; the existing entry always
	// wins once present.
	ReplaceNever

	// AllowPinElision verifies old's content availability through
	// ContentChecker.EnsureContentAvailable. Store keeps no record of
	// content availability of its own, so no check is ever elided and
	// this policy behaves exactly like PinAlways.
	AllowPinElision

	// PinAlways always verifies old's content availability through
	// ContentChecker.
	PinAlways
)

// Config configures a Store.
type Config struct {
	// Dir is the BadgerDB directory backing the memoization entries.
	Dir string

	// MaxAttempts bounds the add_or_get compare-exchange retry loop.
	MaxAttempts int

	// Policy is the replacement-check policy applied in add_or_get step 4.
	Policy ReplacementPolicy

	// OptimizeWrites skips the initial get() on an add_or_get's first
	// attempt, assuming the entry is empty instead. Valid only when the
	// caller already knows (e.g. from a prior enumeration) that no entry
	// exists; a wrong assumption still self-corrects on compare-exchange
	// failure, just at the cost of one wasted attempt.
	OptimizeWrites bool
}

// DefaultConfig returns sensible defaults.
func DefaultConfig(dir string) Config {
	return Config{
		Dir:         dir,
		MaxAttempts: 5,
		Policy:      AllowPinElision,
	}
}
