// Package apperr defines the outcome taxonomy shared by the session engine:
// local validation, missing credential, server-side authorization failure and
// remote failure. Callers classify an error with KindOf to decide whether to
// re-show the credential prompt or just display a message.
package apperr

import (
	"errors"
	"fmt"
)

// Kind classifies a failed operation.
type Kind int

const (
	KindUnknown Kind = iota
	// KindLocalValidation never reaches the network.
	KindLocalValidation
	// KindNoCredential is a local gate refusal; it never reaches the network.
	KindNoCredential
	// KindUnauthorized is a server 401. The credential has already been invalidated.
	KindUnauthorized
	// KindRemoteFailure carries the server message verbatim.
	KindRemoteFailure
	// KindNotReady is an operation attempted from the wrong pipeline state.
	KindNotReady
)

func (k Kind) String() string {
	switch k {
	case KindLocalValidation:
		return "local_validation"
	case KindNoCredential:
		return "no_credential"
	case KindUnauthorized:
		return "unauthorized"
	case KindRemoteFailure:
		return "remote_failure"
	case KindNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}

// PromptsCredential reports whether the UI should ask for the credential again.
func (k Kind) PromptsCredential() bool {
	return k == KindNoCredential || k == KindUnauthorized
}

// Error is a sentinel outcome. Compare with errors.Is.
type Error struct {
	kind Kind
	code string
	msg  string
}

func newError(kind Kind, code, msg string) *Error {
	return &Error{kind: kind, code: code, msg: msg}
}

func (e *Error) Error() string { return e.msg }

// Kind returns the taxonomy class of the error.
func (e *Error) Kind() Kind { return e.kind }

// Code is a stable machine-readable identifier.
func (e *Error) Code() string { return e.code }

var (
	ErrEmptyCredential            = newError(KindLocalValidation, "empty_credential", "credential is empty")
	ErrNoPendingEdit              = newError(KindLocalValidation, "no_pending_edit", "no pending edit to save")
	ErrInvalidValue               = newError(KindLocalValidation, "invalid_value", "value must be a finite number greater than zero")
	ErrInvalidKey                 = newError(KindLocalValidation, "invalid_key", "unknown parameter key")
	ErrInvalidRange               = newError(KindLocalValidation, "invalid_range", "range must satisfy 0 <= from <= to <= 23 with a value greater than zero")
	ErrInvalidInput               = newError(KindLocalValidation, "invalid_input", "calculation input must be finite numbers with positive calorie factors")
	ErrMalformedBody              = newError(KindLocalValidation, "malformed_body", "invalid request body")
	ErrNoCredential               = newError(KindNoCredential, "no_credential", "a valid credential is required")
	ErrPersistenceNeedsCredential = newError(KindNoCredential, "persistence_needs_credential", "persisting a calculation requires a valid credential")
	ErrUnauthorized               = newError(KindUnauthorized, "unauthorized", "credential rejected by server")
	ErrNotReady                   = newError(KindNotReady, "not_ready", "calculation pipeline is not ready")
)

// Remote operation codes.
const (
	OpFetch     = "fetch_failed"
	OpSave      = "save_failed"
	OpCalculate = "calculation_failed"
	OpDefaults  = "defaults_unavailable"
)

// RemoteError is a non-success, non-401 server response. Message is the
// server-supplied text, passed through unmodified.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (http %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *RemoteError) Kind() Kind { return KindRemoteFailure }

func (e *RemoteError) Code() string { return e.Op }

type kinded interface {
	Kind() Kind
}

// KindOf returns the taxonomy class of the outermost classified error in err's chain.
func KindOf(err error) Kind {
	var k kinded
	if errors.As(err, &k) {
		return k.Kind()
	}
	return KindUnknown
}

type coded interface {
	Code() string
}

// CodeOf returns the stable code of err, or "internal" when err is unclassified.
func CodeOf(err error) string {
	var c coded
	if errors.As(err, &c) {
		return c.Code()
	}
	return "internal"
}

// MessageOf returns the user-facing message: the verbatim server text for
// remote failures, the sentinel text otherwise.
func MessageOf(err error) string {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Message
	}
	var e *Error
	if errors.As(err, &e) {
		return e.msg
	}
	if err == nil {
		return ""
	}
	return err.Error()
}
