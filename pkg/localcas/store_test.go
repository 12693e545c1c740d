package localcas

import (
	"bytes"
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/hash"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	cfg := DefaultConfig(t.TempDir(), 0)
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func contentHash(t *testing.T, content []byte) hash.ContentHash {
	t.Helper()
	h, err := NewStreamingHashForTest(content)
	require.NoError(t, err)
	return h
}

// NewStreamingHashForTest avoids importing the hash package's streaming
// hasher into every test case; it wraps a sequential SHA256 sum.
func NewStreamingHashForTest(content []byte) (hash.ContentHash, error) {
	return hash.NewStreamingHasher(hash.SHA256).HashReader(context.Background(), bytes.NewReader(content))
}

func TestPutStreamAndOpenStream(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	content := []byte("build cache payload")
	want := contentHash(t, content)

	h, size, existed, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.False(t, existed)
	assert.True(t, h.Equal(want), "PutStream must derive the hash from the bytes it stores")
	assert.Equal(t, int64(len(content)), size)

	rc, err := s.OpenStream(ctx, h)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestPutStreamIdempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	content := []byte("deduplicated content")

	h1, _, existed, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.False(t, existed)

	h2, _, existed, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, existed, "second put of identical content must report existed=true")
	assert.True(t, h1.Equal(h2))
}

func TestOpenStreamNotFound(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	h := contentHash(t, []byte("never written"))

	_, err := s.OpenStream(ctx, h)
	require.Error(t, err)
	assert.True(t, cacheerr.IsNotFound(err))
}

func TestContains(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	content := []byte("probe me")
	want := contentHash(t, content)

	ok, err := s.Contains(ctx, want)
	require.NoError(t, err)
	assert.False(t, ok)

	h, _, _, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)

	ok, err = s.Contains(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPinNotFound(t *testing.T) {
	s := openTestStore(t)
	h := contentHash(t, []byte("no such entry"))

	err := s.Pin(context.Background(), h)
	require.Error(t, err)
	assert.True(t, cacheerr.IsNotFound(err))
}

func TestEvictToTargetReclaimsOldest(t *testing.T) {
	cfg := DefaultConfig(t.TempDir(), 0)
	cfg.TouchThreshold = 0 // disable the touch-threshold floor so the test can evict freshly-written entries
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	var hashes []hash.ContentHash
	for i := 0; i < 5; i++ {
		content := bytes.Repeat([]byte{byte('a' + i)}, 1024)
		h, _, _, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	evicted, err := s.EvictToTarget(ctx, 1024*2)
	require.NoError(t, err)
	assert.Greater(t, evicted, int64(0))
	assert.LessOrEqual(t, s.totalSize.Load(), int64(1024*2))

	// The most recently written entries should survive; at least one of
	// the earliest must be gone.
	ok, _ := s.Contains(ctx, hashes[0])
	assert.False(t, ok)
}

func TestEvictToTargetRespectsTouchThreshold(t *testing.T) {
	cfg := DefaultConfig(t.TempDir(), 0) // default TouchThreshold = 24h
	s, err := Open(cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	var hashes []hash.ContentHash
	for i := 0; i < 5; i++ {
		content := bytes.Repeat([]byte{byte('a' + i)}, 1024)
		h, _, _, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
		require.NoError(t, err)
		hashes = append(hashes, h)
	}

	// Every entry was just written, so all are younger than the 24h
	// touch threshold: nothing may be evicted even though the target is
	// well below the current size.
	evicted, err := s.EvictToTarget(ctx, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(0), evicted)

	for _, h := range hashes {
		ok, _ := s.Contains(ctx, h)
		assert.True(t, ok)
	}
}

func TestPlaceFileWithOptionsReplacementPolicies(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	content := []byte("placed content")
	h, _, _, err := s.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)

	destPath := t.TempDir() + "/out"

	require.NoError(t, s.PlaceFileWithOptions(ctx, h, destPath, PlaceFileOptions{
		Replacement: FailIfExists,
		Realization: PlaceCopy,
	}))
	got, err := os.ReadFile(destPath)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	err = s.PlaceFileWithOptions(ctx, h, destPath, PlaceFileOptions{Replacement: FailIfExists})
	assert.True(t, cacheerr.IsAlreadyExists(err))

	require.NoError(t, s.PlaceFileWithOptions(ctx, h, destPath, PlaceFileOptions{Replacement: SkipIfExists}))

	require.NoError(t, s.PlaceFileWithOptions(ctx, h, destPath, PlaceFileOptions{Replacement: ReplaceExisting}))
}

func TestLockRootRejectsSecondOpen(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig(dir, 0)

	first, err := Open(cfg, nil)
	require.NoError(t, err)
	defer first.Close()

	_, err = Open(cfg, nil)
	assert.Error(t, err, "a second Store rooted at the same directory must fail to acquire the lock")
}
