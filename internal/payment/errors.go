// Package payment orchestrates Apple Pay payments against the EveryPay
// backend.
package payment

import "errors"

// Code is the stable machine-readable error discriminant. Callers branch on
// it; messages are diagnostic only.
type Code string

const (
	// CodeCancelled: the user dismissed the payment sheet.
	CodeCancelled Code = "cancelled"

	// CodeInitFailed: the backend rejected or returned a malformed init.
	CodeInitFailed Code = "init_failed"

	// CodeAuthorizationFailed: the backend rejected or returned a malformed
	// authorize.
	CodeAuthorizationFailed Code = "authorization_failed"

	// CodeBackendRejected: authorize succeeded transport-wise but the
	// settlement state is not in the success set.
	CodeBackendRejected Code = "backend_rejected"

	// CodeInvalidConfig: the caller omitted a required field.
	CodeInvalidConfig Code = "invalid_config"
)

// Error is a payment failure with a stable code alongside the human message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a coded payment error.
func NewError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// AsError extracts a coded payment error from an error chain.
func AsError(err error) (*Error, bool) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}
