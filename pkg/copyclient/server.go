package copyclient

import (
	"context"
	"io"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/pkg/hash"
)

// LocalStore is the subset of *localcas.Store (or any equivalent) the
// server side of the copy protocol reads from and writes to when serving
// a peer's copy_file/push_file/request_copy call. Expressed as an
// interface, the way pkg/twolevel's RemoteCAS is, so tests can drive
// ServerHandlers against a fake instead of a real on-disk store.
type LocalStore interface {
	OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, error)
	PutStream(ctx context.Context, t hash.Type, r io.Reader) (h hash.ContentHash, size int64, existed bool, err error)
	Contains(ctx context.Context, h hash.ContentHash) (bool, error)
}

// Puller is the peer-fetch callback request_copy triggers: given a content
// hash and the peer that claims to have it, pull it in. pkg/twolevel's
// remote-ingest path plays this role in process wiring.
type Puller func(ctx context.Context, h hash.ContentHash, sourcePeer string) error

// localServerHandlers implements ServerHandlers over a LocalStore,
// answering copy_file reads directly from local content, accepting
// push_file uploads straight into local storage, and deferring
// request_copy hints to a Puller.
type localServerHandlers struct {
	store      LocalStore
	pull       Puller
	chunkSize  int
	compressOK bool
}

// NewServerHandlers returns a ServerHandlers backed by store, using pull
// to act on request_copy hints. A nil pull makes request_copy always
// decline.
func NewServerHandlers(store LocalStore, pull Puller) ServerHandlers {
	return &localServerHandlers{store: store, pull: pull, chunkSize: defaultChunkSize}
}

func (h *localServerHandlers) ServeRead(ctx context.Context, req copyFrame, send func(copyFrame) error) error {
	contentHash, err := hash.Parse(req.Hash)
	if err != nil {
		return send(copyFrame{Kind: frameKindHeader, Exception: "InvalidArgument", Message: err.Error()})
	}

	rc, err := h.store.OpenStream(ctx, contentHash)
	if err != nil {
		return send(copyFrame{Kind: frameKindHeader, Exception: "NotFound", Message: err.Error()})
	}
	defer func() { _ = rc.Close() }()

	if req.Offset > 0 {
		if _, err := io.CopyN(io.Discard, rc, req.Offset); err != nil {
			return send(copyFrame{Kind: frameKindHeader, Exception: "InvalidArgument", Message: "offset beyond content length"})
		}
	}

	if err := send(copyFrame{Kind: frameKindHeader, Compression: req.Compression && h.compressOK}); err != nil {
		return err
	}

	buf := make([]byte, h.chunkSize)
	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			if sendErr := send(copyFrame{Kind: frameKindChunk, Data: append([]byte(nil), buf[:n]...)}); sendErr != nil {
				return sendErr
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}

func (h *localServerHandlers) ServeWrite(ctx context.Context, header copyFrame, recv func() (copyFrame, error)) (bool, string, error) {
	contentHash, err := hash.Parse(header.Hash)
	if err != nil {
		return false, "invalid content hash", nil
	}

	if ok, _ := h.store.Contains(ctx, contentHash); ok {
		return true, "", nil
	}

	pr, pw := io.Pipe()
	type putResult struct {
		h   hash.ContentHash
		err error
	}
	done := make(chan putResult, 1)
	go func() {
		observed, _, _, err := h.store.PutStream(ctx, contentHash.Type, pr)
		done <- putResult{h: observed, err: err}
	}()

	for {
		frame, err := recv()
		if err == io.EOF {
			_ = pw.Close()
			break
		}
		if err != nil {
			_ = pw.CloseWithError(err)
			<-done
			return false, "", err
		}
		if frame.Kind != frameKindChunk {
			continue
		}
		if _, err := pw.Write(frame.Data); err != nil {
			_ = pw.CloseWithError(err)
			<-done
			return false, "", err
		}
	}

	result := <-done
	if result.err != nil {
		return false, "", result.err
	}
	// The pushed bytes are hashed as they land locally rather than trusted
	// under the hash the peer claimed; a mismatch means the peer's claim
	// didn't match what it actually sent, not that storage is broken.
	if !result.h.Equal(contentHash) {
		return false, "content hash mismatch", nil
	}
	return true, "", nil
}

func (h *localServerHandlers) ServeRequestCopy(ctx context.Context, req copyFrame) (bool, string, error) {
	if h.pull == nil {
		return false, "no puller configured", nil
	}
	contentHash, err := hash.Parse(req.Hash)
	if err != nil {
		return false, "invalid content hash", nil
	}
	if err := h.pull(ctx, contentHash, req.SourcePeer); err != nil {
		logger.WarnCtx(ctx, "copyclient: request_copy pull failed", "hash", req.Hash, "source_peer", req.SourcePeer, "error", err)
		return false, err.Error(), nil
	}
	return true, "", nil
}
