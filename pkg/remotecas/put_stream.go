package remotecas

import (
	"bytes"
	"context"
	"io"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/hash"
)

// PutStream uploads content under h, computing h from the stream first if
// the caller has not already hashed it (pass a zero hash.ContentHash to
// request that). Returns existed=true if the content was already present
// remotely — in that case the upload is skipped but the remote copy is
// touched to refresh its last-access time, closing the race window where
// GC could otherwise delete content a caller is about to reference in a
// new memo entry.
func (s *Session) PutStream(ctx context.Context, h hash.ContentHash, size int64, r io.Reader) (existed bool, out hash.ContentHash, err error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "remotecas", "PutStream")
	defer span.End()

	content := r
	if h.IsZero() {
		buf, readErr := io.ReadAll(r)
		if readErr != nil {
			return false, hash.ContentHash{}, cacheerr.NewTerminalError("put_stream: read content", "", readErr)
		}
		computed, hashErr := hash.NewStreamingHasher(hash.SHA256).HashReader(ctx, bytes.NewReader(buf))
		if hashErr != nil {
			return false, hash.ContentHash{}, cacheerr.NewTerminalError("put_stream: hash content", "", hashErr)
		}
		h = computed
		size = int64(len(buf))
		content = bytes.NewReader(buf)
	}

	telemetry.SetAttributes(ctx, telemetry.ContentHash(h.String()), telemetry.Size(size))
	key := hash.BlobPath(h)

	existed, uploadErr := s.store.UploadIfAbsent(ctx, s.container, key, content, size)
	if uploadErr != nil {
		telemetry.RecordError(ctx, uploadErr)
		return false, hash.ContentHash{}, uploadErr
	}

	if existed {
		if err := s.store.Touch(ctx, s.container, key); err != nil && !cacheerr.IsNotFound(err) {
			telemetry.RecordError(ctx, err)
			return false, hash.ContentHash{}, err
		}
		s.emit(events.Event{Kind: events.Touch, Hash: h.String(), Size: size})
		return true, h, nil
	}

	s.emit(events.Event{Kind: events.Add, Hash: h.String(), Size: size})
	return false, h, nil
}
