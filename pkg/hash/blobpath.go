package hash

import (
	"encoding/hex"
	"path"
)

// BlobPath derives the storage-relative path for a ContentHash. The path
// shards on the first two hex characters of the digest so that no single
// directory holds more than ~1/256th of the store's entries, the same
// sharding bazel-remote and OCI registries use for content-addressed
// blobs. The algorithm name is part of the path, so a collision between a
// SHA256 hash and a VSO0 hash of unrelated bytes is impossible.
func BlobPath(h ContentHash) string {
	hexDigest := hex.EncodeToString(h.Bytes)
	if len(hexDigest) < 2 {
		return path.Join(h.Type.String(), hexDigest)
	}
	return path.Join(h.Type.String(), hexDigest[:2], hexDigest)
}
