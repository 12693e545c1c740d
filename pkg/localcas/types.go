package localcas

// Realization selects how PutFile adopts a source file's bytes into the
// store.
type Realization int

const (
	// RealizationCopy copies srcPath's bytes, leaving the source intact.
	RealizationCopy Realization = iota

	// RealizationMove renames srcPath into the store. The source must be
	// on the same volume as the store root; if it isn't, PutFile falls
	// back to RealizationCopy rather than failing.
	RealizationMove

	// RealizationHardLinkOrCopy hard-links srcPath into the store when
	// same-volume, and falls back to a copy otherwise.
	RealizationHardLinkOrCopy
)

// Replacement controls PlaceFile's behavior when destPath already exists.
type Replacement int

const (
	// ReplaceExisting overwrites destPath unconditionally.
	ReplaceExisting Replacement = iota

	// SkipIfExists leaves an existing destPath untouched and returns
	// success without re-placing it.
	SkipIfExists

	// FailIfExists returns cacheerr.AlreadyExists if destPath is present.
	FailIfExists
)

// PlaceRealization controls how PlaceFile materializes bytes at destPath.
type PlaceRealization int

const (
	// PlaceCopy always copies bytes into destPath.
	PlaceCopy PlaceRealization = iota

	// PlaceHardLink hard-links destPath to the store's backing file when
	// same-volume; PlaceFile fails if a link can't be made.
	PlaceHardLink

	// PlaceAny lets the store choose: hard-link when same-volume,
	// otherwise copy.
	PlaceAny
)

// Access describes the access mode a placed file should be granted. The
// store never enforces this beyond setting the destination file's mode
// bits; callers that need real ACL enforcement use a different layer.
type Access int

const (
	// AccessReadOnly places the file read-only, the default for content
	// that callers must not mutate in place (placed build outputs are
	// re-verified against their hash, so in-place writes would silently
	// invalidate that guarantee).
	AccessReadOnly Access = iota

	// AccessWrite places the file writable.
	AccessWrite
)

// PlaceFileOptions bundles the full place_file parameter set from
// spec.md §4.3: Access, Replacement, and Realization.
type PlaceFileOptions struct {
	Access      Access
	Replacement Replacement
	Realization PlaceRealization
}

// DefaultPlaceFileOptions matches the behavior of the simple PlaceFile
// convenience method: replace unconditionally, let the store choose
// realization, place read-only.
func DefaultPlaceFileOptions() PlaceFileOptions {
	return PlaceFileOptions{Access: AccessReadOnly, Replacement: ReplaceExisting, Realization: PlaceAny}
}
