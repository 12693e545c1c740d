package hash

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashStringRoundTrip(t *testing.T) {
	h := FromSHA256(make([]byte, 32))
	s := h.String()
	assert.Equal(t, "sha256:"+fillHex(64), s)

	parsed, err := Parse(s)
	require.NoError(t, err)
	assert.True(t, h.Equal(parsed))
}

func TestParseRejectsMalformed(t *testing.T) {
	_, err := Parse("not-a-hash")
	assert.Error(t, err)

	_, err = Parse("sha256:zz")
	assert.Error(t, err)

	_, err = Parse("unknown:aabbcc")
	assert.Error(t, err)
}

func TestParseRejectsWrongLength(t *testing.T) {
	_, err := Parse("sha256:aabb")
	assert.Error(t, err)
}

func TestContentHashEqualDistinguishesType(t *testing.T) {
	sha := ContentHash{Type: SHA256, Bytes: make([]byte, 32)}
	vso := ContentHash{Type: VSO0, Bytes: make([]byte, 32)}

	assert.False(t, sha.Equal(vso))
}

func TestIsZero(t *testing.T) {
	var h ContentHash
	assert.True(t, h.IsZero())
	assert.False(t, FromSHA256(make([]byte, 32)).IsZero())
}

func fillHex(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = '0'
	}
	return string(b)
}
