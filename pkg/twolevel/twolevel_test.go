package twolevel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/cachetypes"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/localcas"
)

// fakeRemote is an in-memory RemoteCAS used to exercise the two-level
// session's read/write policy without a live S3-compatible backend.
type fakeRemote struct {
	mu       sync.Mutex
	blobs    map[string][]byte
	pinCalls int32
	putCalls int32
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{blobs: make(map[string][]byte)}
}

func (f *fakeRemote) Pin(ctx context.Context, h hash.ContentHash) (int64, error) {
	atomic.AddInt32(&f.pinCalls, 1)
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[h.String()]
	if !ok {
		return 0, cacheerr.NewNotFoundError(h.String())
	}
	return int64(len(b)), nil
}

func (f *fakeRemote) OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.blobs[h.String()]
	if !ok {
		return nil, 0, cacheerr.NewNotFoundError(h.String())
	}
	return io.NopCloser(bytes.NewReader(b)), int64(len(b)), nil
}

func (f *fakeRemote) PlaceFile(ctx context.Context, h hash.ContentHash, destPath string) error {
	return errors.New("not used by these tests")
}

func (f *fakeRemote) PutStream(ctx context.Context, h hash.ContentHash, size int64, r io.Reader) (bool, hash.ContentHash, error) {
	atomic.AddInt32(&f.putCalls, 1)
	buf, err := io.ReadAll(r)
	if err != nil {
		return false, hash.ContentHash{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, exists := f.blobs[h.String()]; exists {
		return true, h, nil
	}
	f.blobs[h.String()] = buf
	return false, h, nil
}

func (f *fakeRemote) seed(h hash.ContentHash, content []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blobs[h.String()] = content
}

func newLocalStore(t *testing.T) *localcas.Store {
	t.Helper()
	store, err := localcas.Open(localcas.DefaultConfig(t.TempDir(), 0), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func sumOf(t *testing.T, content []byte) hash.ContentHash {
	t.Helper()
	h, err := hash.NewStreamingHasher(hash.SHA256).HashReader(context.Background(), bytes.NewReader(content))
	require.NoError(t, err)
	return h
}

func TestOpenStreamIngestsFromRemoteOnLocalMiss(t *testing.T) {
	ctx := context.Background()
	local := newLocalStore(t)
	remote := newFakeRemote()
	content := []byte("remote-only content")
	h := sumOf(t, content)
	remote.seed(h, content)

	session := New(local, remote, DefaultConfig(), nil)

	rc, err := session.OpenStream(ctx, h)
	require.NoError(t, err)
	defer rc.Close()

	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	ok, err := local.Contains(ctx, h)
	require.NoError(t, err)
	assert.True(t, ok, "ingestion must leave the content in local")
}

func TestOpenStreamMissingEverywhereReturnsNotFound(t *testing.T) {
	ctx := context.Background()
	session := New(newLocalStore(t), newFakeRemote(), DefaultConfig(), nil)

	h := sumOf(t, []byte("nowhere"))
	_, err := session.OpenStream(ctx, h)
	require.Error(t, err)
	assert.True(t, cacheerr.IsNotFound(err))
}

func TestPutStreamSkipsRemoteWhenElided(t *testing.T) {
	ctx := context.Background()
	local := newLocalStore(t)
	remote := newFakeRemote()
	cfg := DefaultConfig()
	cfg.SkipRemotePinOnPut = true
	session := New(local, remote, cfg, nil)

	content := []byte("elision candidate")
	want := sumOf(t, content)

	h, _, _, err := session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, h.Equal(want))
	assert.Equal(t, int32(1), remote.putCalls, "first put must reach remote")

	_, _, existed, err := session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, int32(1), remote.putCalls, "second put of the same content must be elided, not pushed to remote again")
}

func TestPutStreamRemoteReadOnlyNeverCallsRemote(t *testing.T) {
	ctx := context.Background()
	local := newLocalStore(t)
	remote := newFakeRemote()
	cfg := DefaultConfig()
	cfg.RemoteReadOnly = true
	session := New(local, remote, cfg, nil)

	content := []byte("local only")

	_, _, _, err := session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int32(0), remote.putCalls)
	assert.Equal(t, int32(0), remote.pinCalls)
}

func TestPutStreamPinShortCircuitsUpload(t *testing.T) {
	ctx := context.Background()
	local := newLocalStore(t)
	remote := newFakeRemote()
	content := []byte("already present remotely")
	h := sumOf(t, content)
	remote.seed(h, content)

	session := New(local, remote, DefaultConfig(), nil)

	got, _, _, err := session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.True(t, got.Equal(h))
	assert.Equal(t, int32(0), remote.putCalls, "a successful remote pin must skip the upload entirely")
}

func TestElisionExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	local := newLocalStore(t)
	remote := newFakeRemote()
	cfg := DefaultConfig()
	cfg.SkipRemotePinOnPut = true
	cfg.ElisionTTL = time.Millisecond
	session := New(local, remote, cfg, nil)

	content := []byte("short-lived elision")

	_, _, _, err := session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int32(1), remote.putCalls)

	time.Sleep(5 * time.Millisecond)

	_, _, _, err = session.PutStream(ctx, hash.SHA256, bytes.NewReader(content))
	require.NoError(t, err)
	assert.Equal(t, int32(2), remote.putCalls, "once the elision entry expires, put_stream must re-verify against remote instead of trusting a stale elision")
}

// fakeMemo is an in-memory MemoSession for the memoization path test.
type fakeMemo struct {
	name    string
	entries map[string]cachetypes.ContentHashListWithDeterminism
	calls   int
}

func newFakeMemo(name string) *fakeMemo {
	return &fakeMemo{name: name, entries: make(map[string]cachetypes.ContentHashListWithDeterminism)}
}

func (f *fakeMemo) AddOrGet(ctx context.Context, fp cachetypes.StrongFingerprint, newValue cachetypes.ContentHashListWithDeterminism) (cachetypes.ContentHashListWithDeterminism, error) {
	f.calls++
	if existing, ok := f.entries[fp.String()]; ok {
		return existing, nil
	}
	f.entries[fp.String()] = newValue
	return newValue, nil
}

func TestAddOrGetConsultsRemoteFirst(t *testing.T) {
	ctx := context.Background()
	session := New(newLocalStore(t), newFakeRemote(), DefaultConfig(), nil)

	fp := cachetypes.StrongFingerprint{WeakFingerprint: "wfp", Selector: "sel"}
	remoteDivergent := cachetypes.ContentHashListWithDeterminism{
		Hashes: []hash.ContentHash{{Type: hash.SHA256, Bytes: []byte{9, 9, 9}}},
	}
	remote := newFakeMemo("remote")
	remote.entries[fp.String()] = remoteDivergent
	local := newFakeMemo("local")

	newValue := cachetypes.ContentHashListWithDeterminism{
		Hashes: []hash.ContentHash{{Type: hash.SHA256, Bytes: []byte{1, 2, 3}}},
	}

	result, err := session.AddOrGet(ctx, local, remote, fp, newValue)
	require.NoError(t, err)
	assert.True(t, result.Equal(remoteDivergent), "when remote already has a value from a concurrent peer, that value must be what gets published locally")
	assert.Equal(t, remoteDivergent, local.entries[fp.String()])
}
