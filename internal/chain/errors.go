package chain

import (
	"errors"
	"fmt"

	"github.com/roach88/blogchain/internal/ir"
)

// ErrorCode categorizes chain errors.
type ErrorCode string

const (
	// CodeNotFound: a referenced address is not a stored action.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeMalformedResponse: the store answered with details of the wrong
	// shape for the question asked.
	CodeMalformedResponse ErrorCode = "MALFORMED_RESPONSE"

	// CodeStorageFailure: the store failed, or a freshly written record
	// could not be read back.
	CodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// CodeValidation: the payload or a reference has the wrong shape or
	// kind. Raised before anything is written.
	CodeValidation ErrorCode = "VALIDATION"

	// CodeForked: more than one update supersedes the same action.
	CodeForked ErrorCode = "FORKED"

	// CodeChainTooDeep: a resolve walk exceeded its hop limit. Belongs to
	// the storage failure class.
	CodeChainTooDeep ErrorCode = "CHAIN_TOO_DEEP"
)

// Error is the error type returned by chain and entry operations.
type Error struct {
	// Code identifies the error category.
	Code ErrorCode

	// Op names the failing operation, e.g. "update_post".
	Op string

	// Address is the address the operation was about, if any.
	Address ir.Address

	// Message is a human-readable description.
	Message string

	// Candidates lists the competing heads of a FORKED error.
	Candidates []ir.Address

	// Err is the underlying cause.
	Err error
}

// Sentinels for errors.Is. They match any *Error of the same code.
var (
	ErrNotFound          = &Error{Code: CodeNotFound}
	ErrMalformedResponse = &Error{Code: CodeMalformedResponse}
	ErrStorageFailure    = &Error{Code: CodeStorageFailure}
	ErrValidation        = &Error{Code: CodeValidation}
	ErrForked            = &Error{Code: CodeForked}
	ErrChainTooDeep      = &Error{Code: CodeChainTooDeep}
)

// Error implements the error interface.
func (e *Error) Error() string {
	msg := string(e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Address != "" {
		msg += fmt.Sprintf(" (address=%s)", e.Address.Short())
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

// Class is the broad category of the error. CHAIN_TOO_DEEP is a storage
// failure; every other code is its own class.
func (e *Error) Class() ErrorCode {
	if e.Code == CodeChainTooDeep {
		return CodeStorageFailure
	}
	return e.Code
}

// Is matches target when it is an *Error carrying this error's code or
// class.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code || t.Code == e.Class()
}

// CodeOf returns the code of the first *Error in err's chain, or "".
func CodeOf(err error) ErrorCode {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

func notFound(op string, addr ir.Address, msg string) *Error {
	return &Error{Code: CodeNotFound, Op: op, Address: addr, Message: msg}
}

func validation(op string, addr ir.Address, msg string) *Error {
	return &Error{Code: CodeValidation, Op: op, Address: addr, Message: msg}
}

func storageFailure(op string, addr ir.Address, err error) *Error {
	return &Error{Code: CodeStorageFailure, Op: op, Address: addr, Err: err}
}

// NewError builds an *Error. Used by layers above the chain that report
// in the same vocabulary.
func NewError(code ErrorCode, op string, addr ir.Address, msg string, cause error) *Error {
	return &Error{Code: code, Op: op, Address: addr, Message: msg, Err: cause}
}
