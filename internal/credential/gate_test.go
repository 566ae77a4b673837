package credential

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/credstore"
	"lazycarbs-console/internal/remote"
)

func TestNewGateLoadsStoredCredentialOnce(t *testing.T) {
	store := credstore.NewMemoryStore("stored-key")
	g := NewGate(context.Background(), store, "")

	if !g.IsValid() || g.State() != StatePresent {
		t.Fatalf("expected loaded credential to be valid, got state %s", g.State())
	}
	if store.Loads != 1 {
		t.Fatalf("expected 1 load, got %d", store.Loads)
	}
}

func TestNewGateWithoutStoredCredential(t *testing.T) {
	g := NewGate(context.Background(), credstore.NewMemoryStore(""), "")

	if g.IsValid() {
		t.Fatal("expected empty gate to be invalid")
	}
	if g.State() != StateAbsent {
		t.Fatalf("expected absent, got %s", g.State())
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("rejects blank", func(t *testing.T) {
		store := credstore.NewMemoryStore("")
		g := NewGate(ctx, store, "")

		if err := g.Submit(ctx, "   "); !errors.Is(err, apperr.ErrEmptyCredential) {
			t.Fatalf("expected ErrEmptyCredential, got %v", err)
		}
		if g.IsValid() || store.Stores != 0 {
			t.Fatalf("expected nothing stored, valid=%t stores=%d", g.IsValid(), store.Stores)
		}
	})

	t.Run("stores trimmed value", func(t *testing.T) {
		store := credstore.NewMemoryStore("")
		g := NewGate(ctx, store, "")
		g.RequestPrompt()

		if err := g.Submit(ctx, "  key-1 "); err != nil {
			t.Fatalf("submitting: %v", err)
		}
		if !g.IsValid() {
			t.Fatal("expected credential to be valid after submit")
		}
		if v, _ := store.Value(); v != "key-1" || store.Stores != 1 {
			t.Fatalf("expected key-1 stored once, got %q stores=%d", v, store.Stores)
		}
		if g.PromptRequested() {
			t.Fatal("expected submit to lower the prompt")
		}
	})
}

func TestInvalidate(t *testing.T) {
	ctx := context.Background()
	store := credstore.NewMemoryStore("key-1")
	g := NewGate(ctx, store, "")

	g.Invalidate(ctx)

	if g.IsValid() || g.State() != StateInvalidated {
		t.Fatalf("expected invalidated gate, got %s", g.State())
	}
	if _, ok := store.Value(); ok || store.Clears != 1 {
		t.Fatalf("expected store cleared once, ok=%t clears=%d", ok, store.Clears)
	}
	if !g.PromptRequested() {
		t.Fatal("expected prompt after invalidation")
	}

	if err := g.Submit(ctx, "key-2"); err != nil {
		t.Fatalf("re-submitting: %v", err)
	}
	if !g.IsValid() {
		t.Fatal("expected a fresh submit to re-arm the gate")
	}
}

func TestAttach(t *testing.T) {
	ctx := context.Background()
	g := NewGate(ctx, credstore.NewMemoryStore("key-1"), "X-Custom-Key")

	req := httptest.NewRequest(http.MethodPut, "/api/bolus-factors/3", nil)
	g.Attach(req)
	if got := req.Header.Get("X-Custom-Key"); got != "key-1" {
		t.Fatalf("expected header key-1, got %q", got)
	}

	g.Invalidate(ctx)
	req = httptest.NewRequest(http.MethodPut, "/api/bolus-factors/3", nil)
	g.Attach(req)
	if got := req.Header.Get("X-Custom-Key"); got != "" {
		t.Fatalf("expected no header on an invalid gate, got %q", got)
	}
}

func TestCheck(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name      string
		err       error
		wantValid bool
		wantIs    error
	}{
		{name: "nil", err: nil, wantValid: true},
		{name: "401", err: fmt.Errorf("put: %w", &remote.StatusError{StatusCode: 401, Message: "Invalid API Key"}), wantValid: false, wantIs: apperr.ErrUnauthorized},
		{name: "500", err: &remote.StatusError{StatusCode: 500, Message: "boom"}, wantValid: true},
		{name: "transport", err: errors.New("connection refused"), wantValid: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			g := NewGate(ctx, credstore.NewMemoryStore("key-1"), "")

			got := g.Check(ctx, tc.err)

			if g.IsValid() != tc.wantValid {
				t.Fatalf("expected valid=%t, got %t", tc.wantValid, g.IsValid())
			}
			if tc.wantIs != nil && !errors.Is(got, tc.wantIs) {
				t.Fatalf("expected %v, got %v", tc.wantIs, got)
			}
			if tc.wantIs == nil && got != tc.err {
				t.Fatalf("expected error unchanged, got %v", got)
			}
		})
	}
}
