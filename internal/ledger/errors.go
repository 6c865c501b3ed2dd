package ledger

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a ledger failure for the retry policy. Transient
// failures are retried with bounded backoff; everything else aborts the
// calling saga at the current step.
type ErrorKind string

const (
	// KindTransient covers network timeouts and receipts not yet available.
	KindTransient ErrorKind = "transient"
	// KindSignatureRejected means the network refused the transaction
	// signature. Terminal.
	KindSignatureRejected ErrorKind = "signature_rejected"
	// KindInsufficientBalance means the treasury cannot fund the operation.
	// Terminal.
	KindInsufficientBalance ErrorKind = "insufficient_balance"
	// KindInvalidAccount means the target account does not exist or cannot
	// receive the token. Terminal.
	KindInvalidAccount ErrorKind = "invalid_account"
	// KindNotFound means the queried entity does not exist on the ledger.
	KindNotFound ErrorKind = "not_found"
)

// Error is the gateway's view of a ledger failure.
type Error struct {
	Kind  ErrorKind
	Op    string
	cause error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("ledger %s: %s: %v", e.Op, e.Kind, e.cause)
	}
	return fmt.Sprintf("ledger %s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified ledger error. Client implementations and test
// fakes use this so the gateway's retry policy sees a uniform shape.
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, cause: cause}
}

// IsRetryable reports whether the error is transient. Unclassified errors are
// treated as terminal so an unknown failure mode never loops.
func IsRetryable(err error) bool {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind == KindTransient
	}
	return false
}

// KindOf returns the error's kind, or empty when the error is not a ledger
// error.
func KindOf(err error) ErrorKind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}
