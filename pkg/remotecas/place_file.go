package remotecas

import (
	"context"
	"os"
	"time"

	"github.com/marmos91/buildcached/internal/logger"
	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/events"
	"github.com/marmos91/buildcached/pkg/hash"
)

// ErrNotPlacedContentNotFound is returned by PlaceFile when h is absent
// remotely.
var ErrNotPlacedContentNotFound = cacheerr.NewNotFoundError("not_placed_content_not_found")

// PlaceFile downloads h's content to destPath, verifying the bytes
// actually received hash to h before leaving the file in place. A
// verification mismatch deletes the partial file and returns NotFound —
// the remote blob is corrupt, and callers must never accept it silently.
func (s *Session) PlaceFile(ctx context.Context, h hash.ContentHash, destPath string) error {
	ctx, span := telemetry.StartComponentSpan(ctx, "remotecas", "PlaceFile", telemetry.ContentHash(h.String()))
	defer span.End()

	openStart := time.Now()
	body, size, err := s.OpenStream(ctx, h)
	if cacheerr.IsNotFound(err) {
		return ErrNotPlacedContentNotFound
	}
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}
	defer func() { _ = body.Close() }()
	openDuration := time.Since(openStart)

	dst, err := os.Create(destPath)
	if err != nil {
		return cacheerr.NewTerminalError("place_file: create destination", destPath, err)
	}

	downloadStart := time.Now()
	firstByteAt := time.Time{}
	hasher := hash.NewStreamingHasher(h.Type)
	observed, hashErr := hasher.HashReader(ctx, &firstByteReader{r: body, onFirstByte: func() {
		firstByteAt = time.Now()
	}, mirror: dst})
	closeErr := dst.Close()
	downloadDuration := time.Since(downloadStart)

	if hashErr != nil {
		_ = os.Remove(destPath)
		telemetry.RecordError(ctx, hashErr)
		return cacheerr.NewTerminalError("place_file: download", destPath, hashErr)
	}
	if closeErr != nil {
		_ = os.Remove(destPath)
		return cacheerr.NewTerminalError("place_file: close destination", destPath, closeErr)
	}

	if !observed.Equal(h) {
		_ = os.Remove(destPath)
		logger.ErrorCtx(ctx, "remote blob content hash mismatch, deleting partial file",
			"expected_hash", h.String(), "observed_hash", observed.String(), "path", destPath)
		s.emit(events.Event{Kind: events.Delete, Hash: h.String()})
		return cacheerr.NewContentHashMismatchError(h.String(), observed.String())
	}

	var ttfb time.Duration
	if !firstByteAt.IsZero() {
		ttfb = firstByteAt.Sub(openStart)
	}
	telemetry.SetAttributes(ctx,
		telemetry.Size(size),
		attrDuration("time_to_first_byte_ms", ttfb),
		attrDuration("open_stream_duration_ms", openDuration),
		attrDuration("download_duration_ms", downloadDuration),
	)
	return nil
}
