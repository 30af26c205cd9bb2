// Package dserr defines the structured error taxonomy shared by the
// datastore engine, planner, and cursor layers.
package dserr

import (
	"errors"
	"fmt"
)

// Code categorizes datastore errors.
type Code string

const (
	// CodeBadRequest indicates a malformed or disallowed request:
	// invalid keys, oversized queries, app-id mismatches, illegal
	// composite-index transitions. Never retried.
	CodeBadRequest Code = "BAD_REQUEST"

	// CodeNeedsIndex indicates a query that no strategy can serve without
	// a composite index that is not defined.
	CodeNeedsIndex Code = "NEEDS_INDEX"

	// CodeContention indicates a lock acquisition timeout or a conflicting
	// concurrent transaction. Safe for the caller to retry.
	CodeContention Code = "CONTENTION"

	// CodeNotFound indicates an unknown cursor or transaction handle.
	CodeNotFound Code = "NOT_FOUND"

	// CodeInternal indicates a backend or invariant failure. Fatal for the
	// current operation only; engine state is released on every exit path.
	CodeInternal Code = "INTERNAL"
)

// Error is a structured datastore error.
//
// Detail carries optional diagnostic context, e.g. the missing composite
// index definition for CodeNeedsIndex.
type Error struct {
	Code    Code
	Message string
	Detail  map[string]string
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New creates an Error with the given code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates an Error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithDetail attaches a detail key/value pair and returns the error.
func (e *Error) WithDetail(key, value string) *Error {
	if e.Detail == nil {
		e.Detail = make(map[string]string)
	}
	e.Detail[key] = value
	return e
}

// CodeOf returns the code of err, or CodeInternal for errors that are not
// *Error. Uses errors.As to handle wrapped errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// IsBadRequest reports whether err is a CodeBadRequest error.
func IsBadRequest(err error) bool { return is(err, CodeBadRequest) }

// IsNeedsIndex reports whether err is a CodeNeedsIndex error.
func IsNeedsIndex(err error) bool { return is(err, CodeNeedsIndex) }

// IsContention reports whether err is a CodeContention error.
func IsContention(err error) bool { return is(err, CodeContention) }

// IsNotFound reports whether err is a CodeNotFound error.
func IsNotFound(err error) bool { return is(err, CodeNotFound) }

// IsInternal reports whether err is a CodeInternal error.
func IsInternal(err error) bool { return is(err, CodeInternal) }

func is(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
