package shared

import (
	"context"
	"strings"

	"github.com/google/uuid"
)

// ContextKey is the type of request-scoped values set by the API layer.
type ContextKey string

const (
	// TraceIDKey holds the trace ID of the request
	TraceIDKey ContextKey = "traceID"

	// OperatorSubjectKey holds the subject of a validated operator token
	OperatorSubjectKey ContextKey = "operatorSubject"

	// TraceIDHeader carries the trace ID in requests and responses
	TraceIDHeader = "X-Trace-ID"

	// TraceIDLength is the length of a generated trace ID in hex characters
	TraceIDLength = 32

	maxIncomingTraceID = 64
)

// SetTraceID adds a freshly generated trace ID to the context.
func SetTraceID(ctx context.Context) context.Context {
	return context.WithValue(ctx, TraceIDKey, generateTraceID())
}

// WithTraceID adds traceID to the context, generating one when the value
// is empty or not a plain token.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	if !validTraceID(traceID) {
		traceID = generateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// GetTraceID returns the trace ID of ctx or an empty string.
func GetTraceID(ctx context.Context) string {
	traceID, _ := ctx.Value(TraceIDKey).(string)
	return traceID
}

// WithOperator records the authenticated operator subject.
func WithOperator(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, OperatorSubjectKey, subject)
}

// GetOperator returns the operator subject set by the auth middleware.
func GetOperator(ctx context.Context) (string, bool) {
	subject, ok := ctx.Value(OperatorSubjectKey).(string)
	return subject, ok && subject != ""
}

// generateTraceID returns 32 hex characters.
func generateTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// validTraceID accepts short tokens of letters, digits, '-' and '_' so that
// client-supplied IDs cannot inject anything into logs.
func validTraceID(id string) bool {
	if id == "" || len(id) > maxIncomingTraceID {
		return false
	}
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}
