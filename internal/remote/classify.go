package remote

import (
	"errors"

	"lazycarbs-console/internal/apperr"
)

// AsRemoteError converts a failed call into an *apperr.RemoteError for op,
// keeping the server message verbatim. Transport errors carry their own text.
// A nil err stays nil.
func AsRemoteError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StatusError
	if errors.As(err, &se) {
		return &apperr.RemoteError{Op: op, StatusCode: se.StatusCode, Message: se.Message}
	}
	return &apperr.RemoteError{Op: op, Message: err.Error()}
}
