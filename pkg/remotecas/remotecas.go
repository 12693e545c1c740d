// Package remotecas implements the remote CAS session: pin, open_stream,
// place_file, and put_stream against a blob storage adapter, plus the
// event emission and last-access touch-on-existing-upload behavior the
// rest of the cache core (two-level session, GC) depends on.
package remotecas

import (
	"github.com/marmos91/buildcached/pkg/blobstore"
	"github.com/marmos91/buildcached/pkg/events"
)

// Session is bound to one remote folder (an S3 container/bucket) and
// derives blob keys from a ContentHash via pkg/hash.BlobPath. Storage-level
// metrics are recorded by store itself (constructed with its own
// metrics.BlobstoreMetrics); Session only adds event emission on top.
type Session struct {
	store     *blobstore.Store
	container string
	emitter   events.Emitter
}

// New constructs a Session over store, scoped to container.
func New(store *blobstore.Store, container string, emitter events.Emitter) *Session {
	return &Session{store: store, container: container, emitter: emitter}
}

func (s *Session) emit(ev events.Event) {
	events.Emit(s.emitter, ev)
}
