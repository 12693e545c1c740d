package twolevel

import (
	"context"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/marmos91/buildcached/pkg/hash"
	"github.com/marmos91/buildcached/pkg/localcas"
	"github.com/marmos91/buildcached/pkg/metrics"
)

// RemoteCAS is the subset of *remotecas.Session the two-level session
// drives. Expressed as an interface (rather than depending on the
// concrete type directly) so tests can exercise the read/write policy
// above against a fake remote instead of a live S3-compatible backend.
type RemoteCAS interface {
	Pin(ctx context.Context, h hash.ContentHash) (size int64, err error)
	OpenStream(ctx context.Context, h hash.ContentHash) (io.ReadCloser, int64, error)
	PlaceFile(ctx context.Context, h hash.ContentHash, destPath string) error
	PutStream(ctx context.Context, h hash.ContentHash, size int64, r io.Reader) (existed bool, out hash.ContentHash, err error)
}

// Session composes a local and a remote CAS session behind the read/write
// policy in Config. fetchLock ensures at most one concurrent ingestion
// from remote for a given content hash; waiters re-check local once the
// leader's ingestion completes.
type Session struct {
	local  *localcas.Store
	remote RemoteCAS
	cfg    Config

	fetchLock singleflight.Group

	elisionMu sync.Mutex
	elision   map[string]time.Time

	metrics metrics.LocalCASMetrics
}

// New constructs a Session over local and remote.
func New(local *localcas.Store, remote RemoteCAS, cfg Config, m metrics.LocalCASMetrics) *Session {
	return &Session{
		local:   local,
		remote:  remote,
		cfg:     cfg,
		elision: make(map[string]time.Time),
		metrics: m,
	}
}

func (s *Session) elided(h hash.ContentHash) bool {
	s.elisionMu.Lock()
	defer s.elisionMu.Unlock()
	until, ok := s.elision[h.String()]
	if !ok {
		return false
	}
	if time.Now().After(until) {
		delete(s.elision, h.String())
		return false
	}
	return true
}

func (s *Session) markElided(h hash.ContentHash) {
	if s.cfg.ElisionTTL <= 0 {
		return
	}
	s.elisionMu.Lock()
	defer s.elisionMu.Unlock()
	s.elision[h.String()] = time.Now().Add(s.cfg.ElisionTTL)
}
