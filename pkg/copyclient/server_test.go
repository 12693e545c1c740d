package copyclient

import (
	"bytes"
	"context"
	"crypto/sha256"
	"io"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marmos91/buildcached/pkg/hash"
)

// fakeLocalStore mimics *localcas.Store's hash-while-storing contract: it
// derives the key from the bytes it actually receives rather than trusting
// a caller-supplied one, so tests exercise the same verification path the
// real store does.
type fakeLocalStore struct {
	mu      sync.Mutex
	content map[string][]byte
}

func newFakeLocalStore() *fakeLocalStore {
	return &fakeLocalStore{content: make(map[string][]byte)}
}

func (s *fakeLocalStore) OpenStream(_ context.Context, h hash.ContentHash) (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.content[h.String()]
	if !ok {
		return nil, io.ErrUnexpectedEOF
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *fakeLocalStore) PutStream(_ context.Context, t hash.Type, r io.Reader) (hash.ContentHash, int64, bool, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return hash.ContentHash{}, 0, false, err
	}
	digest := sha256.Sum256(data)
	computed := hash.ContentHash{Type: t, Bytes: digest[:]}

	s.mu.Lock()
	defer s.mu.Unlock()
	_, existed := s.content[computed.String()]
	s.content[computed.String()] = data
	return computed, int64(len(data)), existed, nil
}

func (s *fakeLocalStore) Contains(_ context.Context, h hash.ContentHash) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.content[h.String()]
	return ok, nil
}

// hashOf returns the real SHA256 ContentHash of content, matching what
// fakeLocalStore.PutStream computes for it.
func hashOf(content string) hash.ContentHash {
	digest := sha256.Sum256([]byte(content))
	return hash.FromSHA256(digest[:])
}

func testContentHash(t *testing.T) hash.ContentHash {
	t.Helper()
	return hashOf("hello world")
}

func TestServeRead_ServesStoredContent(t *testing.T) {
	store := newFakeLocalStore()
	h := testContentHash(t)
	_, _, _, err := store.PutStream(context.Background(), h.Type, bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)

	handlers := NewServerHandlers(store, nil)

	var frames []copyFrame
	err = handlers.(*localServerHandlers).ServeRead(context.Background(), copyFrame{Hash: h.String()}, func(f copyFrame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.NotEmpty(t, frames)
	assert.Equal(t, frameKindHeader, frames[0].Kind)

	var body bytes.Buffer
	for _, f := range frames[1:] {
		body.Write(f.Data)
	}
	assert.Equal(t, "hello world", body.String())
}

func TestServeRead_UnknownHashSendsNotFoundHeader(t *testing.T) {
	store := newFakeLocalStore()
	h := testContentHash(t)
	handlers := NewServerHandlers(store, nil).(*localServerHandlers)

	var frames []copyFrame
	err := handlers.ServeRead(context.Background(), copyFrame{Hash: h.String()}, func(f copyFrame) error {
		frames = append(frames, f)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, frames, 1)
	assert.Equal(t, "NotFound", frames[0].Exception)
}

func TestServeWrite_StoresIncomingChunks(t *testing.T) {
	store := newFakeLocalStore()
	h := hashOf("abcdef")
	handlers := NewServerHandlers(store, nil).(*localServerHandlers)

	chunks := []copyFrame{
		{Kind: frameKindChunk, Data: []byte("abc")},
		{Kind: frameKindChunk, Data: []byte("def")},
	}
	i := 0
	ok, reason, err := handlers.ServeWrite(context.Background(), copyFrame{Hash: h.String()}, func() (copyFrame, error) {
		if i >= len(chunks) {
			return copyFrame{}, io.EOF
		}
		f := chunks[i]
		i++
		return f, nil
	})
	require.NoError(t, err)
	assert.Empty(t, reason)
	assert.True(t, ok)

	got, err := store.OpenStream(context.Background(), h)
	require.NoError(t, err)
	data, err := io.ReadAll(got)
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(data))
}

func TestServeWrite_AlreadyPresentShortCircuits(t *testing.T) {
	store := newFakeLocalStore()
	h := hashOf("x")
	_, _, _, err := store.PutStream(context.Background(), h.Type, bytes.NewReader([]byte("x")))
	require.NoError(t, err)
	handlers := NewServerHandlers(store, nil).(*localServerHandlers)

	called := false
	ok, _, err := handlers.ServeWrite(context.Background(), copyFrame{Hash: h.String()}, func() (copyFrame, error) {
		called = true
		return copyFrame{}, io.EOF
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called, "recv should not be called once content already exists")
}

func TestServeWrite_HashMismatchIsRejected(t *testing.T) {
	store := newFakeLocalStore()
	claimed := hashOf("expected content")
	handlers := NewServerHandlers(store, nil).(*localServerHandlers)

	chunks := []copyFrame{{Kind: frameKindChunk, Data: []byte("actual content")}}
	i := 0
	ok, reason, err := handlers.ServeWrite(context.Background(), copyFrame{Hash: claimed.String()}, func() (copyFrame, error) {
		if i >= len(chunks) {
			return copyFrame{}, io.EOF
		}
		f := chunks[i]
		i++
		return f, nil
	})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "content hash mismatch", reason)

	present, _ := store.Contains(context.Background(), claimed)
	assert.False(t, present, "mismatched content must not be adopted under the claimed hash")
}

func TestServeRequestCopy_NoPullerDeclines(t *testing.T) {
	store := newFakeLocalStore()
	h := testContentHash(t)
	handlers := NewServerHandlers(store, nil).(*localServerHandlers)

	ok, reason, err := handlers.ServeRequestCopy(context.Background(), copyFrame{Hash: h.String(), SourcePeer: "peer-1"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NotEmpty(t, reason)
}

func TestServeRequestCopy_DelegatesToPuller(t *testing.T) {
	store := newFakeLocalStore()
	h := testContentHash(t)

	var gotHash hash.ContentHash
	var gotPeer string
	handlers := NewServerHandlers(store, func(_ context.Context, ch hash.ContentHash, sourcePeer string) error {
		gotHash = ch
		gotPeer = sourcePeer
		return nil
	}).(*localServerHandlers)

	ok, _, err := handlers.ServeRequestCopy(context.Background(), copyFrame{Hash: h.String(), SourcePeer: "peer-1"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, h, gotHash)
	assert.Equal(t, "peer-1", gotPeer)
}
