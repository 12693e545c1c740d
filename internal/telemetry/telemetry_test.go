package telemetry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.False(t, cfg.Enabled)
	assert.Equal(t, "buildcache", cfg.ServiceName)
	assert.Equal(t, "dev", cfg.ServiceVersion)
	assert.Equal(t, "localhost:4317", cfg.Endpoint)
	assert.True(t, cfg.Insecure)
	assert.Equal(t, 1.0, cfg.SampleRate)
}

func TestInitDisabled(t *testing.T) {
	ctx := context.Background()
	cfg := DefaultConfig()
	cfg.Enabled = false

	shutdown, err := Init(ctx, cfg)
	require.NoError(t, err)
	require.NotNil(t, shutdown)

	err = shutdown(ctx)
	assert.NoError(t, err)

	assert.False(t, IsEnabled())
}

func TestTracerReturnsNoOp(t *testing.T) {
	tracer = nil
	enabled = false

	tr := Tracer()
	require.NotNil(t, tr)
}

func TestStartSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartSpan(ctx, "test.operation")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()
}

func TestSpanFromContext(t *testing.T) {
	ctx := context.Background()

	span := SpanFromContext(ctx)
	require.NotNil(t, span)
}

func TestAddEvent(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		AddEvent(ctx, "test.event")
	})
}

func TestRecordError(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		RecordError(ctx, nil)
	})

	require.NotPanics(t, func() {
		RecordError(ctx, errors.New("test error"))
	})
}

func TestSetStatus(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Ok, "success")
	})

	require.NotPanics(t, func() {
		SetStatus(ctx, codes.Error, "failed")
	})
}

func TestSetAttributes(t *testing.T) {
	ctx := context.Background()

	require.NotPanics(t, func() {
		SetAttributes(ctx, Peer("10.0.0.5:9000"))
	})
}

func TestTraceID(t *testing.T) {
	ctx := context.Background()

	traceID := TraceID(ctx)
	assert.Equal(t, "", traceID)
}

func TestSpanID(t *testing.T) {
	ctx := context.Background()

	spanID := SpanID(ctx)
	assert.Equal(t, "", spanID)
}

func TestAttributeHelpers(t *testing.T) {
	t.Run("ContentHash", func(t *testing.T) {
		attr := ContentHash("sha256:abc123")
		assert.Equal(t, AttrContentHash, string(attr.Key))
		assert.Equal(t, "sha256:abc123", attr.Value.AsString())
	})

	t.Run("HashType", func(t *testing.T) {
		attr := HashType("vso0")
		assert.Equal(t, AttrHashType, string(attr.Key))
		assert.Equal(t, "vso0", attr.Value.AsString())
	})

	t.Run("Size", func(t *testing.T) {
		attr := Size(1048576)
		assert.Equal(t, AttrSize, string(attr.Key))
		assert.Equal(t, int64(1048576), attr.Value.AsInt64())
	})

	t.Run("Existed", func(t *testing.T) {
		attr := Existed(true)
		assert.Equal(t, AttrExisted, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})

	t.Run("Container", func(t *testing.T) {
		attr := Container("my-container")
		assert.Equal(t, AttrContainer, string(attr.Key))
		assert.Equal(t, "my-container", attr.Value.AsString())
	})

	t.Run("StorageKey", func(t *testing.T) {
		attr := StorageKey("path/to/object")
		assert.Equal(t, AttrKey, string(attr.Key))
		assert.Equal(t, "path/to/object", attr.Value.AsString())
	})

	t.Run("Attempt", func(t *testing.T) {
		attr := Attempt(3)
		assert.Equal(t, AttrAttempt, string(attr.Key))
		assert.Equal(t, int64(3), attr.Value.AsInt64())
	})

	t.Run("WeakFingerprint", func(t *testing.T) {
		attr := WeakFingerprint("wf:deadbeef")
		assert.Equal(t, AttrWeakFingerprint, string(attr.Key))
		assert.Equal(t, "wf:deadbeef", attr.Value.AsString())
	})

	t.Run("Determinism", func(t *testing.T) {
		attr := Determinism("deterministic_tool")
		assert.Equal(t, AttrDeterminism, string(attr.Key))
		assert.Equal(t, "deterministic_tool", attr.Value.AsString())
	})

	t.Run("Source", func(t *testing.T) {
		attr := Source("remote")
		assert.Equal(t, AttrSource, string(attr.Key))
		assert.Equal(t, "remote", attr.Value.AsString())
	})

	t.Run("Master", func(t *testing.T) {
		attr := Master("node-a")
		assert.Equal(t, AttrMaster, string(attr.Key))
		assert.Equal(t, "node-a", attr.Value.AsString())
	})

	t.Run("Role", func(t *testing.T) {
		attr := Role("master")
		assert.Equal(t, AttrRole, string(attr.Key))
		assert.Equal(t, "master", attr.Value.AsString())
	})

	t.Run("SenderID", func(t *testing.T) {
		attr := SenderID("worker-7")
		assert.Equal(t, AttrSenderID, string(attr.Key))
		assert.Equal(t, "worker-7", attr.Value.AsString())
	})

	t.Run("SequencePoint", func(t *testing.T) {
		attr := SequencePoint(42)
		assert.Equal(t, AttrSequencePoint, string(attr.Key))
		assert.Equal(t, int64(42), attr.Value.AsInt64())
	})

	t.Run("BatchSize", func(t *testing.T) {
		attr := BatchSize(16)
		assert.Equal(t, AttrBatchSize, string(attr.Key))
		assert.Equal(t, int64(16), attr.Value.AsInt64())
	})

	t.Run("Peer", func(t *testing.T) {
		attr := Peer("10.0.0.5:9000")
		assert.Equal(t, AttrPeer, string(attr.Key))
		assert.Equal(t, "10.0.0.5:9000", attr.Value.AsString())
	})

	t.Run("CacheHit", func(t *testing.T) {
		attr := CacheHit(true)
		assert.Equal(t, AttrCacheHit, string(attr.Key))
		assert.True(t, attr.Value.AsBool())
	})
}

func TestStartComponentSpan(t *testing.T) {
	ctx := context.Background()

	newCtx, span := StartComponentSpan(ctx, "memo", "AddOrGet")
	require.NotNil(t, newCtx)
	require.NotNil(t, span)
	span.End()

	newCtx2, span2 := StartComponentSpan(ctx, "twolevel", "PlaceFile", CacheHit(false), Size(4096))
	require.NotNil(t, newCtx2)
	require.NotNil(t, span2)
	span2.End()
}
