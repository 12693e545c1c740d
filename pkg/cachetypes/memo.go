// Package cachetypes holds the data-model types shared across the
// memoization store, master election, and two-level cache session, so
// those packages can depend on a common vocabulary without importing each
// other's implementation packages.
package cachetypes

import (
	"fmt"
	"time"

	"github.com/marmos91/buildcached/pkg/hash"
)

// StrongFingerprint identifies a build action's cache entry: a weak
// fingerprint (hash of static inputs) paired with a selector carrying
// dynamic observation info. Two StrongFingerprints are equal only if both
// fields are byte-equal.
type StrongFingerprint struct {
	WeakFingerprint string
	Selector        string
}

// String renders the fingerprint for logs and metrics labels.
func (f StrongFingerprint) String() string {
	return fmt.Sprintf("%s:%s", f.WeakFingerprint, f.Selector)
}

// DeterminismKind orders the determinism tags a ContentHashListWithDeterminism
// carries, from weakest to strongest guarantee.
type DeterminismKind int

const (
	// DeterminismNone is the weakest tag: no claim about reproducibility.
	DeterminismNone DeterminismKind = iota

	// DeterminismSinglePhaseNonDeterministic marks a single-phase build
	// action whose output is known to vary between runs.
	DeterminismSinglePhaseNonDeterministic

	// DeterminismTool marks output the originating tool claims is
	// deterministic.
	DeterminismTool

	// DeterminismCache marks output vouched for by a specific cache
	// instance (identified by GUID) until Expiry, BuildXL's
	// CacheDeterminism — a later add_or_get from the same cache GUID is
	// treated as an authoritative refresh rather than a competing writer.
	DeterminismCache
)

// Determinism tags a ContentHashListWithDeterminism with its
// reproducibility guarantee. Cache and Expiry are only meaningful when
// Kind is DeterminismCache.
type Determinism struct {
	Kind   DeterminismKind
	Cache  string // cache instance GUID, set only for DeterminismCache
	Expiry time.Time
}

// Expired reports whether a DeterminismCache tag has passed its expiry.
// Non-cache determinism kinds never expire.
func (d Determinism) Expired(now time.Time) bool {
	return d.Kind == DeterminismCache && !d.Expiry.IsZero() && now.After(d.Expiry)
}

// StrictlyDominates reports whether d (the new value's determinism)
// strictly dominates old — the core of the add_or_get replacement
// decision (spec step 4: "new's determinism strictly dominates old's →
// true"). A new DeterminismCache claim that has already expired
// dominates nothing. A new claim from the same cache GUID as old's
// refreshes it and counts as dominant even though the ranking is equal,
// per BuildXL's CacheDeterminism convention.
func (d Determinism) StrictlyDominates(old Determinism, now time.Time) bool {
	if d.Expired(now) {
		return false
	}
	if d.Kind == DeterminismCache && old.Kind == DeterminismCache && d.Cache == old.Cache {
		return true
	}
	return d.Kind > old.Kind
}

// IsSinglePhaseNonDeterministic reports whether the value came from a
// single-phase, known-nondeterministic build action.
func (d Determinism) IsSinglePhaseNonDeterministic() bool {
	return d.Kind == DeterminismSinglePhaseNonDeterministic
}

// IsDeterministicTool reports whether the tool itself vouches for
// reproducibility.
func (d Determinism) IsDeterministicTool() bool {
	return d.Kind == DeterminismTool
}

// ContentHashListWithDeterminism is the memoized value for a
// StrongFingerprint: the ordered output content hashes of a build action,
// tagged with how strongly reproducibility is guaranteed.
type ContentHashListWithDeterminism struct {
	Hashes      []hash.ContentHash
	Determinism Determinism
}

// Equal reports whether two lists carry the same ordered content hashes,
// ignoring determinism — used by add_or_get step 6 ("new equals old").
func (l ContentHashListWithDeterminism) Equal(other ContentHashListWithDeterminism) bool {
	if len(l.Hashes) != len(other.Hashes) {
		return false
	}
	for i := range l.Hashes {
		if !l.Hashes[i].Equal(other.Hashes[i]) {
			return false
		}
	}
	return true
}

// MemoEntry is the stored record for a StrongFingerprint: its value plus
// an opaque replacement token any CompareExchange must present alongside
// the prior value.
type MemoEntry struct {
	Fingerprint      StrongFingerprint
	Value            ContentHashListWithDeterminism
	ReplacementToken string
}

// Source identifies where a memoization get() result came from.
type Source int

const (
	SourceLocal Source = iota
	SourceShared
)

func (s Source) String() string {
	if s == SourceShared {
		return "shared"
	}
	return "local"
}
