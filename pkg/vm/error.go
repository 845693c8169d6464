// Package vm provides error handling for the script runtime.
package vm

import (
	"errors"
	"fmt"
)

// ErrorType represents the type of runtime error.
type ErrorType string

const (
	// Fatal errors - the strand must stop
	ErrorStackOverflow ErrorType = "STACK_OVERFLOW"
	ErrorOutOfMemory   ErrorType = "OUT_OF_MEMORY"
	ErrorUndefinedFunc ErrorType = "UNDEFINED_FUNCTION"
	ErrorCancelled     ErrorType = "CANCELLED"

	// Faults raised by script code or native calls
	ErrorNullReference    ErrorType = "NULL_REFERENCE"
	ErrorUninitialized    ErrorType = "UNINITIALIZED"
	ErrorDivisionByZero   ErrorType = "DIVISION_BY_ZERO"
	ErrorIndexOutOfRange  ErrorType = "INDEX_OUT_OF_RANGE"
	ErrorInvalidOperation ErrorType = "INVALID_OPERATION"
	ErrorNativeFault      ErrorType = "NATIVE_FAULT"
)

// RuntimeError represents a fault raised while a strand executes.
type RuntimeError struct {
	Type     ErrorType
	Message  string
	Function string // name of the script function that was executing, if known
	Context  string // additional context information
	cause    error
}

// Error implements the error interface.
func (e *RuntimeError) Error() string {
	if e.Function != "" {
		return fmt.Sprintf("[%s] %s in %s", e.Type, e.Message, e.Function)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the native error that raised this fault, if any.
func (e *RuntimeError) Unwrap() error {
	return e.cause
}

// IsFatal returns true if the error leaves the context unusable until it is reset.
func (e *RuntimeError) IsFatal() bool {
	switch e.Type {
	case ErrorStackOverflow, ErrorOutOfMemory, ErrorUndefinedFunc, ErrorCancelled:
		return true
	default:
		return false
	}
}

// NewRuntimeError creates a new RuntimeError.
func NewRuntimeError(errType ErrorType, message string) *RuntimeError {
	return &RuntimeError{
		Type:    errType,
		Message: message,
	}
}

// NewRuntimeErrorf creates a new RuntimeError with a formatted message.
func NewRuntimeErrorf(errType ErrorType, format string, args ...any) *RuntimeError {
	return NewRuntimeError(errType, fmt.Sprintf(format, args...))
}

// NewInsufficientMemoryError reports that a frame does not fit into the context.
func NewInsufficientMemoryError(need, free int) *RuntimeError {
	return NewRuntimeErrorf(ErrorOutOfMemory, "insufficient memory: frame needs %d slots, %d available", need, free)
}

// NewStackOverflowError creates a stack overflow error.
func NewStackOverflowError(depth, max int) *RuntimeError {
	return NewRuntimeErrorf(ErrorStackOverflow, "stack overflow: depth %d exceeds maximum %d", depth, max)
}

// NewNullReferenceError creates a null or dangling reference error.
func NewNullReferenceError(detail string) *RuntimeError {
	return NewRuntimeError(ErrorNullReference, detail)
}

// NewDivisionByZeroError creates a division by zero error.
func NewDivisionByZeroError() *RuntimeError {
	return NewRuntimeError(ErrorDivisionByZero, "division by zero")
}

// NewIndexOutOfRangeError creates an index out of range error.
func NewIndexOutOfRangeError(index int64, length int) *RuntimeError {
	return NewRuntimeErrorf(ErrorIndexOutOfRange, "index %d out of range (length %d)", index, length)
}

// asRuntimeError converts an arbitrary native error into a RuntimeError.
func asRuntimeError(err error, function string) *RuntimeError {
	var rtErr *RuntimeError
	if errors.As(err, &rtErr) {
		if rtErr.Function == "" {
			rtErr.Function = function
		}
		return rtErr
	}
	return &RuntimeError{
		Type:     ErrorNativeFault,
		Message:  err.Error(),
		Function: function,
		cause:    err,
	}
}
