// Package credential owns the operator credential and its client-asserted
// validity. A credential is trusted from the moment it is entered or loaded
// until the server rejects it; a 401 is the only event that revokes it.
package credential

import (
	"context"
	"net/http"
	"strings"

	"lazycarbs-console/internal/apperr"
	"lazycarbs-console/internal/observability"
	"lazycarbs-console/internal/remote"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultHeader is the header the backend reads the credential from.
const DefaultHeader = "X-API-Key"

// State is the lifecycle of the held credential.
type State int

const (
	// StateAbsent: nothing was loaded or entered yet.
	StateAbsent State = iota
	// StatePresent: held and assumed valid.
	StatePresent
	// StateInvalidated: the server rejected it; a new one must be entered.
	StateInvalidated
)

func (s State) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateInvalidated:
		return "invalidated"
	default:
		return "absent"
	}
}

// Store persists the credential between sessions.
type Store interface {
	Load(ctx context.Context) (string, bool, error)
	Store(ctx context.Context, value string) error
	Clear(ctx context.Context) error
}

// Gate is not safe for concurrent use.
type Gate struct {
	store  Store
	header string

	state  State
	value  string
	prompt bool
}

// NewGate reads the persisted credential once. A load failure is logged and
// leaves the gate absent.
func NewGate(ctx context.Context, store Store, header string) *Gate {
	if header == "" {
		header = DefaultHeader
	}
	g := &Gate{store: store, header: header}

	value, ok, err := store.Load(ctx)
	switch {
	case err != nil:
		observability.LoggerWithTrace(ctx).Warn("loading stored credential failed", zap.Error(err))
	case ok && strings.TrimSpace(value) != "":
		g.value = strings.TrimSpace(value)
		g.state = StatePresent
	}
	recordState(g.state)
	return g
}

// Submit stores value and marks it valid. Persisting is best effort: a store
// failure is logged and the credential is still held for this session.
func (g *Gate) Submit(ctx context.Context, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return apperr.ErrEmptyCredential
	}

	g.value = value
	g.state = StatePresent
	g.prompt = false
	recordState(g.state)

	if err := g.store.Store(ctx, value); err != nil {
		observability.LoggerWithTrace(ctx).Warn("persisting credential failed", zap.Error(err))
	}
	observability.LoggerWithTrace(ctx).Info("credential submitted")
	return nil
}

// IsValid reports the client-side validity flag. It never calls the network.
func (g *Gate) IsValid() bool {
	return g.state == StatePresent
}

func (g *Gate) State() State {
	return g.state
}

// Invalidate drops the credential, clears the persisted copy and raises the
// prompt. It is the only transition out of StatePresent.
func (g *Gate) Invalidate(ctx context.Context) {
	g.value = ""
	g.state = StateInvalidated
	g.prompt = true
	recordState(g.state)
	invalidations.Add(ctx, 1)

	if err := g.store.Clear(ctx); err != nil {
		observability.LoggerWithTrace(ctx).Warn("clearing stored credential failed", zap.Error(err))
	}
	trace.SpanFromContext(ctx).AddEvent("credential.invalidated")
	observability.LoggerWithTrace(ctx).Warn("credential invalidated after authorization failure")
}

// Attach adds the credential header when the gate is valid and leaves the
// request untouched otherwise. It has the shape of remote.RequestEditor.
func (g *Gate) Attach(req *http.Request) {
	if !g.IsValid() {
		return
	}
	req.Header.Set(g.header, g.value)
}

// RequestPrompt raises the prompt after a local refusal.
func (g *Gate) RequestPrompt() {
	g.prompt = true
}

// PromptRequested reports whether the UI should ask for the credential.
func (g *Gate) PromptRequested() bool {
	return g.prompt
}

// Check applies the shared authorization rule to the result of a mutating
// call: a 401 invalidates the credential before ErrUnauthorized is returned.
// Any other error is returned unchanged.
func (g *Gate) Check(ctx context.Context, err error) error {
	if err == nil || !remote.IsUnauthorized(err) {
		return err
	}
	g.Invalidate(ctx)
	return apperr.ErrUnauthorized
}
