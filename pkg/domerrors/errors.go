// Package domerrors tags errors with stable domain codes so callers can react
// to the kind of failure without string matching. Every public operation in
// the core returns one of these; the HTTP layer maps codes to statuses.
package domerrors

import (
	"errors"
	"fmt"
)

type Code string

const (
	// CodeUnauthorized covers role, ownership, and peer-gate failures.
	CodeUnauthorized Code = "unauthorized"
	// CodeWrongState means the operation is not valid for the entity's
	// current status (or deadline window).
	CodeWrongState Code = "wrong_state"
	// CodeDuplicate is an idempotency violation: duplicate user, unresolved
	// duplicate role request, duplicate vote.
	CodeDuplicate           Code = "duplicate"
	CodeInsufficientPayment Code = "insufficient_payment"
	// CodeBidTooHigh rejects bids above the Dutch ceiling or not strictly
	// below the current best bid.
	CodeBidTooHigh     Code = "bid_too_high"
	CodeSelfApproval   Code = "self_approval_denied"
	CodeSelfInterest   Code = "self_interest_denied"
	CodeRegionMismatch Code = "region_mismatch"
	CodeInvalidInput   Code = "invalid_input"
	CodeNotFound       Code = "not_found"
	CodeInternal       Code = "internal"
)

type domainError struct {
	code Code
	msg  string
	err  error
}

func (e *domainError) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.code, e.msg)
}

func (e *domainError) Unwrap() error { return e.err }

// New builds a coded error with no underlying cause.
func New(code Code, msg string) error {
	return &domainError{code: code, msg: msg}
}

// Newf is New with formatting.
func Newf(code Code, format string, args ...any) error {
	return &domainError{code: code, msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, msg string) error {
	if err == nil {
		return nil
	}
	return &domainError{code: code, msg: msg, err: err}
}

// CodeOf returns the outermost domain code carried by err, or CodeInternal
// when err carries none.
func CodeOf(err error) Code {
	var de *domainError
	if errors.As(err, &de) {
		return de.code
	}
	return CodeInternal
}

// HasCode reports whether any error in the chain carries the given code.
func HasCode(err error, code Code) bool {
	for err != nil {
		var de *domainError
		if !errors.As(err, &de) {
			return false
		}
		if de.code == code {
			return true
		}
		err = de.err
	}
	return false
}

// Is is a readable alias for HasCode at the call site.
func Is(err error, code Code) bool { return HasCode(err, code) }

// Message returns the human-readable message without the code prefix.
func Message(err error) string {
	var de *domainError
	if errors.As(err, &de) {
		return de.msg
	}
	if err != nil {
		return err.Error()
	}
	return ""
}
