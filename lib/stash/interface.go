package stash

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and the underlying engine error (if any).
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message
	Err  error   // The wrapped underlying error (may be nil)
}

// Error implements the error interface.
func (e *Error) Error() string {
	errorCode := ""
	switch e.Code {
	case RetCInternalError:
		errorCode = "InternalError"
	case RetCOpenError:
		errorCode = "OpenError"
	case RetCVersionEscalation:
		errorCode = "VersionEscalation"
	case RetCClosed:
		errorCode = "Closed"
	default:
		errorCode = "Unknown"
	}

	if e.Err != nil {
		return fmt.Sprintf("StorageError (code %s): %s: %v", errorCode, e.Msg, e.Err)
	}
	return fmt.Sprintf("StorageError (code %s): %s", errorCode, e.Msg)
}

// Unwrap exposes the underlying engine error for errors.Is and errors.As.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new StorageError with the given code, message and
// underlying cause (may be nil).
func NewError(code RetCode, msg string, err error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  err,
	}
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess           RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                    // 1: Operation failed due to an engine error.
	RetCOpenError                        // 2: Database could not be opened.
	RetCVersionEscalation                // 3: Collection not created within the version bump limit.
	RetCClosed                           // 4: Operation on a closed stash.
)
