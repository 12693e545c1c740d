package localcas

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/marmos91/buildcached/pkg/cacheerr"
	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// tmpDir returns (creating if needed) the staging directory content is
// written into before its final hash is known. It lives under the store
// root so a rename into the hash-derived destination never crosses a
// volume boundary.
func (s *Store) tmpDir() (string, error) {
	dir := filepath.Join(s.root, ".tmp")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}

// countingWriter tracks the number of bytes written through it, used to
// learn a stream's size as a side effect of hashing it rather than
// re-stating the destination file afterward.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// PutStream hashes r while storing its bytes under the content-addressed
// path the resulting hash derives, returning the computed ContentHash and
// size (spec.md §4.1/§4.3: "hash while storing to a content-addressed
// location"). The hash is never taken on faith from a caller — it's
// derived from the exact bytes staged to disk — so a mislabeled stream
// can never land under the wrong key. If the computed hash already has a
// local entry, the freshly-staged bytes are discarded and the existing
// blob is kept (existed=true), per "on hash collision with existing
// content, keep existing".
func (s *Store) PutStream(ctx context.Context, t hash.Type, r io.Reader) (h hash.ContentHash, size int64, existed bool, err error) {
	if err := ctx.Err(); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewCancelledError("")
	}

	dir, err := s.tmpDir()
	if err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: mkdir temp", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: create temp", dir, err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	start := time.Now()
	counter := &countingWriter{w: tmp}
	computed, hashErr := hash.NewStreamingHasher(t).HashReader(ctx, io.TeeReader(r, counter))
	closeErr := tmp.Close()
	if hashErr != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: hash", tmpPath, hashErr)
	}
	if closeErr != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: close temp", tmpPath, closeErr)
	}

	if ok, _ := s.Contains(ctx, computed); ok {
		_ = s.touchAccess(computed)
		return computed, counter.n, true, nil
	}

	dest := s.filePath(computed)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: mkdir", dest, err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_stream: rename", dest, err)
	}

	if err := s.recordEntry(computed, counter.n); err != nil {
		return hash.ContentHash{}, 0, false, err
	}

	metrics.ObserveWrite(s.metrics, counter.n, time.Since(start))
	s.maybeEvict(ctx, counter.n)
	return computed, counter.n, false, nil
}

// PutFile hashes srcPath's content and adopts it into the store using
// RealizationCopy, the safest default (the source is left intact).
func (s *Store) PutFile(ctx context.Context, t hash.Type, srcPath string) (h hash.ContentHash, size int64, existed bool, err error) {
	return s.PutFileWithRealization(ctx, t, srcPath, RealizationCopy)
}

// PutFileWithRealization hashes srcPath's content to derive its
// ContentHash, then adopts it into the store honoring realization from
// spec.md §4.3: RealizationMove renames srcPath into place (falling back
// to copy when the source is on a different volume from the store root),
// RealizationHardLinkOrCopy links when possible and copies otherwise, and
// RealizationCopy always copies, leaving srcPath untouched. As with
// PutStream, the returned ContentHash is computed from srcPath's bytes,
// never supplied by the caller.
func (s *Store) PutFileWithRealization(ctx context.Context, t hash.Type, srcPath string, realization Realization) (h hash.ContentHash, size int64, existed bool, err error) {
	if err := ctx.Err(); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewCancelledError("")
	}

	f, err := os.Open(srcPath)
	if err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: open source", srcPath, err)
	}
	computed, hashErr := hash.NewStreamingHasher(t).HashReader(ctx, f)
	closeErr := f.Close()
	if hashErr != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: hash source", srcPath, hashErr)
	}
	if closeErr != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: close source", srcPath, closeErr)
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: stat source", srcPath, err)
	}

	if ok, _ := s.Contains(ctx, computed); ok {
		_ = s.touchAccess(computed)
		return computed, info.Size(), true, nil
	}

	dest := s.filePath(computed)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: mkdir", dest, err)
	}

	start := time.Now()
	if err := s.realize(srcPath, dest, realization); err != nil {
		return hash.ContentHash{}, 0, false, cacheerr.NewTerminalError("put_file: realize", dest, err)
	}

	if err := s.recordEntry(computed, info.Size()); err != nil {
		return hash.ContentHash{}, 0, false, err
	}

	metrics.ObserveWrite(s.metrics, info.Size(), time.Since(start))
	s.maybeEvict(ctx, info.Size())
	return computed, info.Size(), false, nil
}

// PutFileTrusted adopts srcPath's bytes under h using realization without
// recomputing the hash, for callers that already verified h against
// srcPath's content themselves (the two-level cache's staged remote-ingest
// path, which places a file via a remotecas session that already verified
// the downloaded content's hash).
func (s *Store) PutFileTrusted(ctx context.Context, h hash.ContentHash, srcPath string, realization Realization) (size int64, existed bool, err error) {
	if err := ctx.Err(); err != nil {
		return 0, false, cacheerr.NewCancelledError("")
	}

	if sz, ok := s.entrySize(h); ok {
		_ = s.touchAccess(h)
		return sz, true, nil
	}

	info, err := os.Stat(srcPath)
	if err != nil {
		return 0, false, cacheerr.NewTerminalError("put_file: stat source", srcPath, err)
	}

	dest := s.filePath(h)
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, false, cacheerr.NewTerminalError("put_file: mkdir", dest, err)
	}

	start := time.Now()
	if err := s.realize(srcPath, dest, realization); err != nil {
		return 0, false, cacheerr.NewTerminalError("put_file: realize", dest, err)
	}

	if err := s.recordEntry(h, info.Size()); err != nil {
		return 0, false, err
	}

	metrics.ObserveWrite(s.metrics, info.Size(), time.Since(start))
	s.maybeEvict(ctx, info.Size())
	return info.Size(), false, nil
}

// realize materializes src's bytes at dest according to realization.
// RealizationMove and RealizationHardLinkOrCopy both require src and
// dest to share a volume; os.Rename/os.Link return a cross-device error
// in that case (EXDEV on Unix), which falls back to a copy.
func (s *Store) realize(src, dest string, realization Realization) error {
	switch realization {
	case RealizationMove:
		if err := os.Rename(src, dest); err == nil {
			return nil
		}
		return copyFile(src, dest)
	case RealizationHardLinkOrCopy:
		if err := os.Link(src, dest); err == nil {
			return nil
		}
		return copyFileKeepSource(src, dest)
	default: // RealizationCopy
		return copyFileKeepSource(src, dest)
	}
}

// copyFile copies src to dst and removes src, used by RealizationMove's
// cross-device fallback (the caller asked to move; a copy-then-remove is
// the closest equivalent when a real rename isn't possible).
func copyFile(src, dst string) error {
	if err := copyFileKeepSource(src, dst); err != nil {
		return err
	}
	return os.Remove(src)
}

// copyFileKeepSource copies src to dst, leaving src in place.
func copyFileKeepSource(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	_, err = io.Copy(out, in)
	return err
}

func (s *Store) recordEntry(h hash.ContentHash, size int64) error {
	entry := journalEntry{Size: size, LastAccess: time.Now().UnixNano()}
	if err := s.journal.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(h), encodeEntry(entry))
	}); err != nil {
		return cacheerr.NewTerminalError("record journal entry", h.String(), err)
	}
	s.totalSize.Add(size)
	if s.metrics != nil {
		s.metrics.SetCurrentSize(s.totalSize.Load())
	}
	return nil
}
