package hash

import (
	"bytes"
	"context"
	"crypto/md5"
	"crypto/sha256"
	"hash"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultBlockSize is the block size used to split content for VSO0
// parallel hashing.
const DefaultBlockSize = 4 * 1024 * 1024 // 4MiB

// DefaultParallelBoundary is the content offset at which VSO0 hashing
// starts hashing blocks concurrently. Blocks that start below it are
// hashed one after another on the calling goroutine, so content smaller
// than this is always hashed sequentially; the per-block goroutine
// bookkeeping isn't worth it.
const DefaultParallelBoundary = 16 * 1024 * 1024 // 16MiB

// StreamingHasher computes a ContentHash over an io.Reader. SHA256 and MD5
// use a plain sequential digest; VSO0 hashes fixed-size blocks,
// sequentially below the configured boundary and concurrently past it.
type StreamingHasher struct {
	Type             Type
	BlockSize        int64
	ParallelBoundary int64
	MaxParallel      int
}

// NewStreamingHasher returns a StreamingHasher configured with the package
// defaults for the given algorithm.
func NewStreamingHasher(t Type) *StreamingHasher {
	return &StreamingHasher{
		Type:             t,
		BlockSize:        DefaultBlockSize,
		ParallelBoundary: DefaultParallelBoundary,
		MaxParallel:      4,
	}
}

// HashReader consumes r to completion and returns its ContentHash.
func (s *StreamingHasher) HashReader(ctx context.Context, r io.Reader) (ContentHash, error) {
	if s.Type != VSO0 {
		return s.hashSequential(r)
	}
	return s.hashParallel(ctx, r)
}

func (s *StreamingHasher) hashSequential(r io.Reader) (ContentHash, error) {
	var digest hash.Hash
	switch s.Type {
	case MD5:
		digest = md5.New()
	default:
		digest = sha256.New()
	}

	if _, err := io.Copy(digest, r); err != nil {
		return ContentHash{}, err
	}
	return ContentHash{Type: s.Type, Bytes: digest.Sum(nil)}, nil
}

// hashParallel splits r into fixed-size blocks, hashing up to MaxParallel
// blocks concurrently, then combines the ordered block digests into one
// final VSO0 hash. Reads off r happen on the calling goroutine in order;
// blocks starting below ParallelBoundary are hashed there too, and only
// the SHA256 computation over each later block is farmed out.
func (s *StreamingHasher) hashParallel(ctx context.Context, r io.Reader) (ContentHash, error) {
	blockSize := s.BlockSize
	if blockSize <= 0 {
		blockSize = DefaultBlockSize
	}
	maxParallel := s.MaxParallel
	if maxParallel <= 0 {
		maxParallel = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallel)

	var mu blockHashesMutex
	blockHashes := make([][]byte, 0, 64)

	for blockIndex := 0; ; blockIndex++ {
		buf := make([]byte, blockSize)
		n, readErr := io.ReadFull(r, buf)
		if n > 0 {
			buf = buf[:n]
			idx := blockIndex
			if int64(idx)*blockSize < s.ParallelBoundary {
				if err := ctx.Err(); err != nil {
					return ContentHash{}, err
				}
				sum := sha256.Sum256(buf)
				mu.set(&blockHashes, idx, sum[:])
			} else {
				g.Go(func() error {
					if err := gctx.Err(); err != nil {
						return err
					}
					sum := sha256.Sum256(buf)
					mu.set(&blockHashes, idx, sum[:])
					return nil
				})
			}
		}

		if readErr == io.EOF || readErr == io.ErrUnexpectedEOF {
			break
		}
		if readErr != nil {
			_ = g.Wait()
			return ContentHash{}, readErr
		}
	}

	if err := g.Wait(); err != nil {
		return ContentHash{}, err
	}

	combined := bytes.NewBuffer(nil)
	for _, h := range blockHashes {
		combined.Write(h)
	}
	final := sha256.Sum256(combined.Bytes())
	return ContentHash{Type: VSO0, Bytes: final[:]}, nil
}

// blockHashesMutex guards growing the ordered block-hash slice from
// multiple hashing goroutines.
type blockHashesMutex struct {
	mu sync.Mutex
}

func (m *blockHashesMutex) set(slice *[][]byte, index int, value []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for len(*slice) <= index {
		*slice = append(*slice, nil)
	}
	(*slice)[index] = value
}
