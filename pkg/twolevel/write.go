package twolevel

import (
	"context"
	"io"

	"github.com/marmos91/buildcached/internal/telemetry"
	"github.com/marmos91/buildcached/pkg/hash"
)

// PutStream hashes r while storing it locally (local.PutStream computes
// the hash; neither this session nor its caller ever supplies one), then
// pushes the result to remote according to Config (elision, pinning,
// read-only). r must be seekable for the stream-replay rule to rewind
// after the local write consumes it, otherwise a fresh local read by the
// now-known hash is opened instead of replaying the original reader.
func (s *Session) PutStream(ctx context.Context, t hash.Type, r io.Reader) (h hash.ContentHash, size int64, existed bool, err error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "twolevel", "PutStream")
	defer span.End()

	h, size, localExisted, err := s.local.PutStream(ctx, t, r)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return hash.ContentHash{}, 0, false, err
	}
	telemetry.SetAttributes(ctx, telemetry.ContentHash(h.String()), telemetry.Size(size))

	if s.cfg.RemoteReadOnly {
		return h, size, localExisted, nil
	}
	if localExisted && s.elided(h) {
		return h, size, true, nil
	}

	if !s.cfg.SkipRemotePinOnPut {
		if _, pinErr := s.remote.Pin(ctx, h); pinErr == nil {
			s.markElided(h)
			return h, size, localExisted, nil
		}
	}

	replayReader, owned, err := s.replayReader(ctx, h, r)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return h, size, localExisted, err
	}
	if owned {
		defer func() { _ = replayReader.(io.Closer).Close() }()
	}

	if _, _, err := s.remote.PutStream(ctx, h, size, replayReader); err != nil {
		telemetry.RecordError(ctx, err)
		return h, size, localExisted, err
	}
	s.markElided(h)
	return h, size, localExisted, nil
}

// PutFile hashes srcPath's content while adopting it locally, then pushes
// it to remote the same way PutStream does.
func (s *Session) PutFile(ctx context.Context, t hash.Type, srcPath string) (h hash.ContentHash, size int64, existed bool, err error) {
	ctx, span := telemetry.StartComponentSpan(ctx, "twolevel", "PutFile")
	defer span.End()

	h, size, localExisted, err := s.local.PutFile(ctx, t, srcPath)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return hash.ContentHash{}, 0, false, err
	}
	telemetry.SetAttributes(ctx, telemetry.ContentHash(h.String()), telemetry.Size(size))

	if s.cfg.RemoteReadOnly {
		return h, size, localExisted, nil
	}
	if localExisted && s.elided(h) {
		return h, size, true, nil
	}

	if !s.cfg.SkipRemotePinOnPut {
		if _, pinErr := s.remote.Pin(ctx, h); pinErr == nil {
			s.markElided(h)
			return h, size, localExisted, nil
		}
	}

	// srcPath was consumed (renamed or copied-then-removed) by the local
	// put, so the only way to get bytes for remote is a fresh local read
	// by content hash, which PutFile guarantees is now available.
	rc, err := s.local.OpenStream(ctx, h)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return h, size, localExisted, err
	}
	defer func() { _ = rc.Close() }()

	if _, _, err := s.remote.PutStream(ctx, h, size, rc); err != nil {
		telemetry.RecordError(ctx, err)
		return h, size, localExisted, err
	}
	s.markElided(h)
	return h, size, localExisted, nil
}

// replayReader implements the stream-replay rule: if r is seekable,
// rewind it to its original position (position 0, the assumption being
// callers always pass a fresh reader positioned at the start) and return
// it unowned, since the caller is still responsible for it; otherwise
// open a new local read by content hash (guaranteed available since the
// local put just succeeded) and return it owned, so the caller closes it.
func (s *Session) replayReader(ctx context.Context, h hash.ContentHash, r io.Reader) (reader io.Reader, owned bool, err error) {
	if seeker, ok := r.(io.Seeker); ok {
		if _, err := seeker.Seek(0, io.SeekStart); err == nil {
			return r, false, nil
		}
	}
	rc, err := s.local.OpenStream(ctx, h)
	if err != nil {
		return nil, false, err
	}
	return rc, true, nil
}
