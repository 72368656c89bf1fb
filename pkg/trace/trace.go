package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// TraceIDKey is the JSON / log field name used for trace ids.
const TraceIDKey = "trace_id"

type ctxKey struct{}

// GenerateTraceID returns a random 128-bit hex trace id.
func GenerateTraceID() string {
	b := make([]byte, 16)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// FromContext returns the trace id stored in ctx, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(ctxKey{}).(string); ok {
		return traceID
	}
	return ""
}

// WithContext stores traceID in ctx.
func WithContext(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, traceID)
}

// HeaderName is the HTTP header carrying the trace id between services.
func HeaderName() string {
	return "X-Trace-ID"
}
