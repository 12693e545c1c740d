package logger

import "log/slog"

// Standard field keys for structured logging across every component of the
// cache core. Keep log statements on these keys so aggregation/search stays
// consistent regardless of which subsystem emitted the line.
const (
	// Tracing
	KeyTraceID = "trace_id"
	KeySpanID  = "span_id"

	// Component / operation
	KeyComponent = "component" // hash, blobstore, localcas, remotecas, twolevel, memo, election, eventstream, copyclient
	KeyOperation = "operation" // PutStream, Pin, AddOrGet, GetRole, Publish, CopyFile, ...

	// Content addressing
	KeyContentHash = "content_hash"
	KeyHashType    = "hash_type"
	KeyBlobPath    = "blob_path"
	KeySize        = "size_bytes"
	KeyExisted     = "existed"

	// Remote storage
	KeyContainer = "container"
	KeyFolder    = "folder"
	KeyKey       = "object_key"
	KeyETag      = "etag"
	KeyAttempt   = "attempt"
	KeyMaxRetry  = "max_retries"

	// Memoization
	KeyWeakFingerprint   = "weak_fingerprint"
	KeySelector          = "selector"
	KeyDeterminism       = "determinism"
	KeyReplacementToken  = "replacement_token"
	KeySource            = "source"
	KeyOptimizedWrite    = "optimized_write"
	KeyCompareExchangeOK = "compare_exchange_ok"

	// Master election
	KeyMaster    = "master"
	KeyRole      = "role"
	KeyLeaseExp  = "lease_expiry"
	KeySelfID    = "self_id"
	KeyEligible  = "eligible"

	// Event stream
	KeySenderID       = "sender_id"
	KeyEpoch          = "epoch"
	KeyOperationID    = "operation_id"
	KeySequencePoint  = "sequence_point"
	KeyBatchSize      = "batch_size"
	KeyPartition      = "partition"
	KeyDropped        = "dropped"

	// Copy client pool
	KeyPeer         = "peer"
	KeyBytesPerSec  = "bytes_per_sec"
	KeyCompressed   = "compressed"

	// Cache composition
	KeyCacheHit  = "cache_hit"
	KeyElided    = "elided"
	KeyTierLocal = "tier_local"

	KeyError    = "error"
	KeyDuration = "duration_ms"
)

func Component(name string) slog.Attr    { return slog.String(KeyComponent, name) }
func Operation(name string) slog.Attr    { return slog.String(KeyOperation, name) }
func ContentHash(h string) slog.Attr     { return slog.String(KeyContentHash, h) }
func HashType(t string) slog.Attr        { return slog.String(KeyHashType, t) }
func BlobPath(p string) slog.Attr        { return slog.String(KeyBlobPath, p) }
func Size(n int64) slog.Attr             { return slog.Int64(KeySize, n) }
func Existed(b bool) slog.Attr           { return slog.Bool(KeyExisted, b) }
func Container(name string) slog.Attr    { return slog.String(KeyContainer, name) }
func ObjectKey(k string) slog.Attr       { return slog.String(KeyKey, k) }
func ETag(tag string) slog.Attr          { return slog.String(KeyETag, tag) }
func Attempt(n int) slog.Attr            { return slog.Int(KeyAttempt, n) }
func MaxRetry(n int) slog.Attr           { return slog.Int(KeyMaxRetry, n) }
func WeakFingerprint(h string) slog.Attr { return slog.String(KeyWeakFingerprint, h) }
func Determinism(d string) slog.Attr     { return slog.String(KeyDeterminism, d) }
func Source(s string) slog.Attr          { return slog.String(KeySource, s) }
func Master(id string) slog.Attr         { return slog.String(KeyMaster, id) }
func Role(r string) slog.Attr            { return slog.String(KeyRole, r) }
func SenderID(id string) slog.Attr       { return slog.String(KeySenderID, id) }
func Epoch(e string) slog.Attr           { return slog.String(KeyEpoch, e) }
func SequencePoint(n uint64) slog.Attr   { return slog.Uint64(KeySequencePoint, n) }
func BatchSize(n int) slog.Attr          { return slog.Int(KeyBatchSize, n) }
func Partition(n int) slog.Attr          { return slog.Int(KeyPartition, n) }
func Peer(location string) slog.Attr     { return slog.String(KeyPeer, location) }
func CacheHit(hit bool) slog.Attr        { return slog.Bool(KeyCacheHit, hit) }
func Err(err error) slog.Attr {
	if err == nil {
		return slog.String(KeyError, "")
	}
	return slog.String(KeyError, err.Error())
}
