package common

import "context"

type contextKey string

const contextKeyTraceID contextKey = "trace_id"

// WithTraceID attaches a per-document trace ID to the context so every stage
// logs under the same correlation key.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, contextKeyTraceID, traceID)
}

// TraceIDFromContext extracts the trace ID from context, or "".
func TraceIDFromContext(ctx context.Context) string {
	if traceID, ok := ctx.Value(contextKeyTraceID).(string); ok {
		return traceID
	}
	return ""
}
