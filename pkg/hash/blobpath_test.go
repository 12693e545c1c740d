package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBlobPathShardsByPrefix(t *testing.T) {
	h, err := Parse("sha256:" + fillHex(62) + "ab")
	assert.NoError(t, err)

	p := BlobPath(h)
	assert.Equal(t, "sha256/00/"+fillHex(62)+"ab", p)
}

func TestBlobPathDistinguishesAlgorithm(t *testing.T) {
	digest := make([]byte, 32)
	digest[0] = 0xff

	sha := BlobPath(ContentHash{Type: SHA256, Bytes: digest})
	vso := BlobPath(ContentHash{Type: VSO0, Bytes: digest})

	assert.NotEqual(t, sha, vso)
}
