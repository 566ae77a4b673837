package observability

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// RequestIDHeader carries the request id on inbound responses and on every
// call forwarded to the backend.
const RequestIDHeader = "X-Request-ID"

type contextKey string

const RequestIDKey contextKey = "request_id"

// NewRequestID issues a fresh UUID request id.
func NewRequestID() string {
	return uuid.New().String()
}

// RequestIDFromRequest reuses the caller's X-Request-ID when it is a UUID and
// issues a new one otherwise, so a caller can correlate its own logs with
// ours and the backend's.
func RequestIDFromRequest(r *http.Request) string {
	if raw := strings.TrimSpace(r.Header.Get(RequestIDHeader)); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id.String()
		}
	}
	return NewRequestID()
}

func ContextWithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, RequestIDKey, id)
}

func RequestIDFromContext(ctx context.Context) string {
	id, ok := ctx.Value(RequestIDKey).(string)
	if !ok {
		return ""
	}
	return id
}
