// Package dErrors defines coded domain errors shared across services and
// transports. Services create or wrap errors with a code; the HTTP layer maps
// codes to status codes without inspecting error strings.
package dErrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain error. Codes are stable API; messages are not.
type Code string

const (
	// CodeValidation marks malformed or missing request fields. No side
	// effects have occurred when this is returned.
	CodeValidation Code = "validation_error"

	// CodePrerequisiteNotMet marks a request whose preconditions do not hold:
	// missing association, consent not found, already revoked. No side effects.
	CodePrerequisiteNotMet Code = "prerequisite_not_met"

	// CodeLedgerRetryable marks a transient ledger failure that exhausted its
	// retry budget (network timeout, receipt not yet available).
	CodeLedgerRetryable Code = "ledger_retryable"

	// CodeLedgerTerminal marks a non-retryable ledger failure: signature
	// rejected, insufficient treasury balance, invalid account.
	CodeLedgerTerminal Code = "ledger_terminal"

	// CodePersistence marks a store write failure. Always fatal to a saga.
	CodePersistence Code = "persistence_error"

	// CodeInconsistentState marks a persistence failure that happened after
	// ledger side effects already exist. Operators must reconcile; it is never
	// conflated with a clean abort.
	CodeInconsistentState Code = "inconsistent_state"

	CodeNotFound     Code = "not_found"
	CodeUnauthorized Code = "unauthorized"
	CodeTimeout      Code = "timeout"
	CodeInternal     Code = "internal_error"
)

// Error is a coded domain error. It supports errors.Is/As chains through the
// wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error without a cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// Is reports whether err carries the given code anywhere in its chain.
func Is(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
	}
	return false
}

// CodeOf returns the outermost code in the chain, or CodeInternal when the
// error is not coded.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a code to an HTTP status for the transport layer.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeValidation:
		return http.StatusBadRequest
	case CodePrerequisiteNotMet:
		return http.StatusConflict
	case CodeNotFound:
		return http.StatusNotFound
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeTimeout:
		return http.StatusGatewayTimeout
	case CodeLedgerRetryable, CodeLedgerTerminal:
		return http.StatusBadGateway
	case CodePersistence, CodeInconsistentState, CodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
