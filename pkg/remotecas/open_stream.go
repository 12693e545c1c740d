package remotecas

import (
	"context"
	"io"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/hash"
)

// OpenStream opens a reader over h's remote content. A missing blob emits
// a Delete event and returns cacheerr.NotFound; a successful open emits a
// Touch event, since the remote store's own read path refreshes last
// access as a side effect of GetObject.
func (s *Session) OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, int64, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "remotecas", "OpenStream", telemetry.ContentHash(h.String()))
	defer span.End()

	key := hash.BlobPath(h)

	size, statErr := s.store.Stat(ctx, s.container, key)
	if cacheerr.IsNotFound(statErr) {
		s.emit(events.Event{Kind: events.Delete, Hash: h.String()})
		return nil, 0, cacheerr.NewNotFoundError(h.String())
	}
	if statErr != nil {
		telemetry.RecordError(ctx, statErr)
		return nil, 0, statErr
	}

	body, _, err := s.store.OpenRead(ctx, s.container, key)
	if cacheerr.IsNotFound(err) {
		s.emit(events.Event{Kind: events.Delete, Hash: h.String()})
		return nil, 0, cacheerr.NewNotFoundError(h.String())
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, 0, err
	}

	s.emit(events.Event{Kind: events.Touch, Hash: h.String(), Size: size})
	telemetry.SetAttributes(ctx, telemetry.Size(size))
	return body, size, nil
}
