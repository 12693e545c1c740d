package twolevel

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/localcas"
)

// OpenStream returns a reader over h's content, ingesting from remote on a
// local miss.
func (s *Session) OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "twolevel", "OpenStream", telemetry.ContentHash(h.String()))
	defer span.End()

	if err := s.ensureLocal(ctx, h); err != nil {
		return nil, err
	}
	return s.local.OpenStream(ctx, h)
}

// PlaceFile materializes h's content at destPath, ingesting from remote on
// a local miss.
func (s *Session) PlaceFile(ctx context.Context, h hash.ContentHash, destPath string) error {
	ctx, span := telemetry.StartComponentSpan(ctx, "twolevel", "PlaceFile", telemetry.ContentHash(h.String()))
	defer span.End()

	if err := s.ensureLocal(ctx, h); err != nil {
		return err
	}
	return s.local.PlaceFile(ctx, h, destPath)
}

// ensureLocal implements the two-level read path: try local, then under
// the fetch-lock re-check local and ingest from remote on a confirmed
// miss, then retry local once more.
func (s *Session) ensureLocal(ctx context.Context, h hash.ContentHash) error {
	if s.cfg.AlwaysUpdateFromRemote {
		_ = s.ingestFromRemote(ctx, h) // best-effort promotion; a remote miss falls through to the normal path
	}

	if ok, err := s.local.Contains(ctx, h); err != nil {
		return err
	} else if ok {
		return nil
	}

	key := h.String()
	_, err, _ := s.fetchLock.Do(key, func() (any, error) {
		if ok, err := s.local.Contains(ctx, h); err != nil {
			return nil, err
		} else if ok {
			return nil, nil
		}
		return nil, s.ingestFromRemote(ctx, h)
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return err
	}

	if ok, err := s.local.Contains(ctx, h); err != nil {
		return err
	} else if !ok {
		return cacheerr.NewNotFoundError(h.String())
	}
	return nil
}

// ingestFromRemote pulls h from remote into local, staging through
// cfg.TempDir when configured and streaming directly otherwise.
func (s *Session) ingestFromRemote(ctx context.Context, h hash.ContentHash) error {
	if s.cfg.TempDir != "" {
		tmpPath := filepath.Join(s.cfg.TempDir, fmt.Sprintf("ingest-%s-%s", h.Type, hashShort(h)))
		if err := s.remote.PlaceFile(ctx, h, tmpPath); err != nil {
			return err
		}
		defer func() { _ = os.Remove(tmpPath) }()

		// The blob at tmpPath was written and hash-verified by
		// remote.PlaceFile, so local adopts it via the trusted path
		// (spec.md §4.5's "L.put_trusted(temp, Move)") instead of
		// re-hashing content it just confirmed.
		if _, _, err := s.local.PutFileTrusted(ctx, h, tmpPath, localcas.RealizationMove); err != nil {
			return err
		}
		s.markElided(h)
		return nil
	}

	rc, _, err := s.remote.OpenStream(ctx, h)
	if err != nil {
		return err
	}
	defer func() { _ = rc.Close() }()

	// remote.OpenStream (unlike PlaceFile) never verifies the bytes it
	// hands back against h, so this is the one checkpoint where a
	// corrupt remote blob gets caught: local.PutStream computes the real
	// hash of what it actually received, and a mismatch is treated the
	// same way a corrupt download via PlaceFile would be.
	observed, _, _, err := s.local.PutStream(ctx, h.Type, rc)
	if err != nil {
		return err
	}
	if !observed.Equal(h) {
		return cacheerr.NewContentHashMismatchError(h.String(), observed.String())
	}
	s.markElided(h)
	return nil
}

func hashShort(h hash.ContentHash) string {
	s := h.String()
	if len(s) > 16 {
		return s[len(s)-16:]
	}
	return s
}
