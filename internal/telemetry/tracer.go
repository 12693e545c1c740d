package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys, one family per component of the cache core.
const (
	AttrComponent = "buildcache.component"
	AttrOperation = "buildcache.operation"

	AttrContentHash = "content.hash"
	AttrHashType    = "content.hash_type"
	AttrBlobPath    = "content.blob_path"
	AttrSize        = "content.size"
	AttrExisted     = "content.existed"

	AttrContainer = "storage.container"
	AttrFolder    = "storage.folder"
	AttrKey       = "storage.key"
	AttrAttempt   = "storage.attempt"

	AttrWeakFingerprint = "memo.weak_fingerprint"
	AttrDeterminism     = "memo.determinism"
	AttrSource          = "memo.source"

	AttrMaster   = "election.master"
	AttrRole     = "election.role"
	AttrSelfID   = "election.self_id"

	AttrSenderID      = "event.sender_id"
	AttrEpoch         = "event.epoch"
	AttrSequencePoint = "event.sequence_point"
	AttrBatchSize     = "event.batch_size"

	AttrPeer         = "copy.peer"
	AttrBytesPerSec  = "copy.bytes_per_sec"
	AttrCacheHit     = "cache.hit"
)

// Span name prefixes, one per component package.
const (
	SpanHash       = "hash."
	SpanBlobstore  = "blobstore."
	SpanLocalCAS   = "localcas."
	SpanRemoteCAS  = "remotecas."
	SpanTwoLevel   = "twolevel."
	SpanMemo       = "memo."
	SpanElection   = "election."
	SpanEventBus   = "eventstream."
	SpanCopyClient = "copyclient."
)

func Component(name string) attribute.KeyValue     { return attribute.String(AttrComponent, name) }
func Operation(name string) attribute.KeyValue     { return attribute.String(AttrOperation, name) }
func ContentHash(h string) attribute.KeyValue      { return attribute.String(AttrContentHash, h) }
func HashType(t string) attribute.KeyValue         { return attribute.String(AttrHashType, t) }
func BlobPath(p string) attribute.KeyValue         { return attribute.String(AttrBlobPath, p) }
func Size(n int64) attribute.KeyValue              { return attribute.Int64(AttrSize, n) }
func Existed(b bool) attribute.KeyValue            { return attribute.Bool(AttrExisted, b) }
func Container(name string) attribute.KeyValue     { return attribute.String(AttrContainer, name) }
func StorageKey(key string) attribute.KeyValue     { return attribute.String(AttrKey, key) }
func Attempt(n int) attribute.KeyValue             { return attribute.Int(AttrAttempt, n) }
func WeakFingerprint(h string) attribute.KeyValue  { return attribute.String(AttrWeakFingerprint, h) }
func Determinism(d string) attribute.KeyValue      { return attribute.String(AttrDeterminism, d) }
func Source(s string) attribute.KeyValue           { return attribute.String(AttrSource, s) }
func Master(id string) attribute.KeyValue          { return attribute.String(AttrMaster, id) }
func Role(r string) attribute.KeyValue             { return attribute.String(AttrRole, r) }
func SenderID(id string) attribute.KeyValue        { return attribute.String(AttrSenderID, id) }
func Epoch(e string) attribute.KeyValue            { return attribute.String(AttrEpoch, e) }
func SequencePoint(n uint64) attribute.KeyValue    { return attribute.Int64(AttrSequencePoint, int64(n)) }
func BatchSize(n int) attribute.KeyValue           { return attribute.Int(AttrBatchSize, n) }
func Peer(location string) attribute.KeyValue      { return attribute.String(AttrPeer, location) }
func CacheHit(hit bool) attribute.KeyValue         { return attribute.Bool(AttrCacheHit, hit) }

// StartComponentSpan starts a span named "<component>.<operation>" carrying
// Component/Operation attributes plus any extra ones supplied.
func StartComponentSpan(ctx context.Context, component, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := append([]attribute.KeyValue{Component(component), Operation(operation)}, attrs...)
	return StartSpan(ctx, component+"."+operation, trace.WithAttributes(allAttrs...))
}
