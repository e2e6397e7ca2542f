package scopedauth

import (
	"context"
	"errors"

	"github.com/go-ctap/scopedcred/pkg/authenticator"
)

// ErrorName is the conventional DOMException-style classification a
// rejected operation carries.
type ErrorName string

const (
	NotAllowedError   ErrorName = "NotAllowedError"
	NotSupportedError ErrorName = "NotSupportedError"
	InvalidStateError ErrorName = "InvalidStateError"
	SecurityError     ErrorName = "SecurityError"
	UnknownError      ErrorName = "UnknownError"
)

// AuthError is the error kind returned by the two service operations.
type AuthError struct {
	Op   string
	Name ErrorName
	Err  error
}

func newAuthError(op string, name ErrorName, err error) *AuthError {
	return &AuthError{
		Op:   op,
		Name: name,
		Err:  err,
	}
}

func (e *AuthError) Error() string {
	return e.Op + " failed (" + string(e.Name) + "): " + e.Err.Error()
}

func (e *AuthError) Unwrap() error {
	return e.Err
}

func classify(err error) ErrorName {
	switch {
	case errors.Is(err, authenticator.ErrNoSupportedAlgorithm):
		return NotSupportedError
	case errors.Is(err, authenticator.ErrCredentialExcluded):
		return InvalidStateError
	case errors.Is(err, authenticator.ErrNoCredentials),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return NotAllowedError
	default:
		return UnknownError
	}
}
