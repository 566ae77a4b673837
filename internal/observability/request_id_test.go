package observability

import (
	"context"
	"testing"

	"github.com/google/uuid"
)

func TestNewRequestIDReturnsDistinctUUIDs(t *testing.T) {
	first, second := NewRequestID(), NewRequestID()

	for _, id := range []string{first, second} {
		if _, err := uuid.Parse(id); err != nil {
			t.Fatalf("expected valid UUID, got %q: %v", id, err)
		}
	}
	if first == second {
		t.Fatalf("expected distinct ids, got %q twice", first)
	}
}

func TestRequestIDFromContext(t *testing.T) {
	tests := []struct {
		name string
		ctx  context.Context
		want string
	}{
		{name: "set", ctx: ContextWithRequestID(context.Background(), "abc-123"), want: "abc-123"},
		{name: "missing", ctx: context.Background(), want: ""},
		{name: "wrong type", ctx: context.WithValue(context.Background(), RequestIDKey, 42), want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := RequestIDFromContext(tc.ctx); got != tc.want {
				t.Fatalf("expected %q, got %q", tc.want, got)
			}
		})
	}
}
