package remotecas

import (
	"context"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/hash"
)

// Pin refreshes h's last-access time on the remote store, keeping it alive
// against GC without downloading its bytes. On success it returns h's
// size. A missing blob is reported as cacheerr.NotFound and emits a
// Delete event, the only signal peers get that remote content they
// believed present is actually gone.
func (s *Session) Pin(ctx context.Context, h hash.ContentHash) (size int64, err error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "remotecas", "Pin", telemetry.ContentHash(h.String()))
	defer span.End()

	key := hash.BlobPath(h)

	size, statErr := s.store.Stat(ctx, s.container, key)
	if cacheerr.IsNotFound(statErr) {
		s.emit(events.Event{Kind: events.Delete, Hash: h.String()})
		return 0, cacheerr.NewNotFoundError(h.String())
	}
	if statErr != nil {
		telemetry.RecordError(ctx, statErr)
		return 0, statErr
	}

	if err := s.store.Touch(ctx, s.container, key); err != nil {
		if cacheerr.IsNotFound(err) || cacheerr.IsPreconditionFailed(err) {
			s.emit(events.Event{Kind: events.Delete, Hash: h.String()})
			return 0, cacheerr.NewNotFoundError(h.String())
		}
		telemetry.RecordError(ctx, err)
		return 0, err
	}

	telemetry.SetAttributes(ctx, telemetry.Size(size))
	return size, nil
}
