package hash

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashReaderSequentialSHA256(t *testing.T) {
	content := []byte("build cache content")
	want := sha256.Sum256(content)

	hasher := NewStreamingHasher(SHA256)
	got, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.Equal(t, SHA256, got.Type)
	assert.Equal(t, want[:], got.Bytes)
}

func TestHashReaderVSO0SmallContentIsDeterministic(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 1024)

	hasher := NewStreamingHasher(VSO0)
	first, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	second, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.True(t, first.Equal(second))
	assert.Equal(t, VSO0, first.Type)
}

func TestHashReaderVSO0CrossesParallelBoundary(t *testing.T) {
	hasher := NewStreamingHasher(VSO0)
	hasher.BlockSize = 16
	hasher.ParallelBoundary = 32
	hasher.MaxParallel = 4

	content := bytes.Repeat([]byte("abcdefgh"), 20) // 160 bytes, several blocks

	first, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	second, err := hasher.HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.True(t, first.Equal(second), "hashing the same content twice must be deterministic regardless of block concurrency")
}

func TestHashReaderVSO0DiffersFromSHA256(t *testing.T) {
	content := bytes.Repeat([]byte("y"), 1024)

	sha, err := NewStreamingHasher(SHA256).HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	vso, err := NewStreamingHasher(VSO0).HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)

	assert.False(t, sha.Equal(vso))
}
