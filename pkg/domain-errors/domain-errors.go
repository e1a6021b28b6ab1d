package domainerrors

import (
	"errors"
	"fmt"
)

// Code is a stable failure category. Handlers map codes to HTTP status; bulk
// verification reports them per item.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeBadRequest         Code = "bad_request"
	CodeInvalidInput       Code = "invalid_input"
	CodeValidation         Code = "validation_failed"
	CodeInternal           Code = "internal_error"
	CodeConflict           Code = "conflict"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeNotImplemented     Code = "not_implemented"

	// Credential engine codes
	CodeIllegalTransition     Code = "illegal_transition"      // Lifecycle edge not allowed from the effective status
	CodeDuplicateFederationID Code = "duplicate_federation_id" // Federation number already held by an active credential of the same type
	CodeInvalidSubject        Code = "invalid_subject"         // Required snapshot fields missing at issuance
	CodeBatchTooLarge         Code = "batch_too_large"         // Bulk request above the configured maximum
	CodeIntegrityViolation    Code = "integrity_violation"     // Stored checksum does not match the record
	CodeStoreUnavailable      Code = "store_unavailable"       // Backing store could not be reached
)

type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

func Newf(code Code, format string, args ...any) error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the domain code carried by err, or CodeInternal when err is not a domain error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// IsTransient reports whether err may succeed on retry: the store was unreachable
// or the operation ran out of time.
func IsTransient(err error) bool {
	switch CodeOf(err) {
	case CodeStoreUnavailable, CodeTimeout:
		return true
	}
	return false
}
