package domain

import (
	"errors"
	"fmt"
)

// ErrorClass groups error codes by how a caller should react to them.
type ErrorClass int

const (
	ClassInternal ErrorClass = iota
	ClassInvalid
	ClassNotFound
	ClassConflict
)

func (c ErrorClass) String() string {
	switch c {
	case ClassInvalid:
		return "invalid"
	case ClassNotFound:
		return "not_found"
	case ClassConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// DomainError is an engine error carrying a stable code of the form
// RC-<AREA>-<NNNN>. Two DomainErrors match under errors.Is when their codes
// are equal, so sentinels keep matching after WithDetails or WithCause.
type DomainError struct {
	Code    string
	Class   ErrorClass
	Message string
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	msg := "[" + e.Code + "] " + e.Message
	if e.Details != "" {
		msg += ": " + e.Details
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *DomainError) Unwrap() error { return e.Cause }

func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && e.Code == t.Code
}

// WithDetails returns a copy of e with details attached.
func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

// WithDetailsf is WithDetails with fmt.Sprintf formatting.
func (e *DomainError) WithDetailsf(format string, args ...any) *DomainError {
	return e.WithDetails(fmt.Sprintf(format, args...))
}

// WithCause returns a copy of e wrapping cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

func define(code string, class ErrorClass, message string) *DomainError {
	return &DomainError{Code: code, Class: class, Message: message}
}

// CodeOf returns the code of the outermost DomainError in err's chain,
// or "" if there is none.
func CodeOf(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ClassOf returns the class of the outermost DomainError in err's chain.
// Errors without one are internal.
func ClassOf(err error) ErrorClass {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Class
	}
	return ClassInternal
}

// Checkpoint cycle.
var (
	// ErrCheckpointFailed wraps the cause of an aborted cycle. The child was resumed.
	ErrCheckpointFailed = define("RC-CKPT-5000", ClassInternal, "checkpoint cycle failed")
	ErrPauseFailed      = define("RC-CKPT-5001", ClassInternal, "child pause failed")
	ErrResumeFailed     = define("RC-CKPT-5002", ClassInternal, "child resume failed")

	ErrNoSnapshot = define("RC-CKPT-4040", ClassNotFound, "no committed snapshot")

	// ErrServiceMissing means an optional session service is not installed.
	// The engine skips the kind.
	ErrServiceMissing = define("RC-CKPT-4041", ClassNotFound, "session service not installed")

	// ErrStaleReference means a stored record lost its live counterpart.
	ErrStaleReference = define("RC-CKPT-4090", ClassConflict, "stale session reference")
)

// Memory service.
var (
	ErrAllocationFailure = define("RC-MEM-5070", ClassInternal, "memory allocation failed")

	// ErrCopyTargetMismatch means a copy task no longer fits the live memory layout.
	ErrCopyTargetMismatch = define("RC-MEM-4090", ClassConflict, "copy target mismatch")

	ErrDataspaceNotFound = define("RC-MEM-4040", ClassNotFound, "dataspace not found")

	// ErrInvalidLayout means designated sub-regions overlap, are empty or
	// do not cover the managed object.
	ErrInvalidLayout = define("RC-MEM-4001", ClassInvalid, "invalid managed dataspace layout")
)

// System.
var (
	ErrInternal        = define("RC-SYS-5000", ClassInternal, "internal error")
	ErrStorageError    = define("RC-SYS-5001", ClassInternal, "storage error")
	ErrInvalidArgument = define("RC-ARG-4000", ClassInvalid, "invalid argument")
)
