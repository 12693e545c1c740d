package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions.
type contextKey struct{}

var logContextKey = contextKey{}

// LogContext holds request-scoped logging fields that are threaded through
// a call chain via context.Context: which operation is running, which
// remote container/sender it touches, and the content hash in play.
type LogContext struct {
	TraceID     string // OpenTelemetry trace ID
	SpanID      string // OpenTelemetry span ID
	Operation   string // component operation: PutStream, AddOrGet, GetRole, Publish, ...
	Container   string // remote blob container/folder in play
	SenderID    string // event-stream / election participant identity
	ContentHash string // ContentHash short form, when the log line is about one blob
	StartTime   time.Time
}

// WithContext attaches lc to ctx.
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from ctx, or nil if absent.
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a LogContext for a participant/sender identity.
func NewLogContext(senderID string) *LogContext {
	return &LogContext{
		SenderID:  senderID,
		StartTime: time.Now(),
	}
}

// Clone returns a deep copy of lc.
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithOperation returns a copy with Operation set.
func (lc *LogContext) WithOperation(op string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Operation = op
	}
	return clone
}

// WithContainer returns a copy with Container set.
func (lc *LogContext) WithContainer(container string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.Container = container
	}
	return clone
}

// WithContentHash returns a copy with ContentHash set.
func (lc *LogContext) WithContentHash(hash string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ContentHash = hash
	}
	return clone
}

// WithTrace returns a copy with TraceID/SpanID set.
func (lc *LogContext) WithTrace(traceID, spanID string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.TraceID = traceID
		clone.SpanID = spanID
	}
	return clone
}

// DurationMs returns the elapsed time since StartTime in milliseconds.
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
