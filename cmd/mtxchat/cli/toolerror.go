// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ErrorCategory classifies command errors so scripts can decide between
// fixing input, retrying, and giving up without parsing message text.
type ErrorCategory string

const (
	// CategoryValidation: bad arguments or flags, or a missing
	// precondition the user can supply (credentials, a room).
	CategoryValidation ErrorCategory = "validation"

	// CategoryNotFound: a referenced key or resource does not exist.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryForbidden: the operation is not permitted, such as
	// writing a reserved key or a rejected login.
	CategoryForbidden ErrorCategory = "forbidden"

	// CategoryTransient: the homeserver could not be reached or did not
	// answer. Retrying later may succeed.
	CategoryTransient ErrorCategory = "transient"

	// CategoryInternal: an unexpected failure such as a store I/O error.
	CategoryInternal ErrorCategory = "internal"
)

// exitCodes maps each category to the process exit status main uses.
var exitCodes = map[ErrorCategory]int{
	CategoryValidation: 2,
	CategoryNotFound:   3,
	CategoryForbidden:  4,
	CategoryTransient:  5,
	CategoryInternal:   1,
}

// ToolError is a categorized error returned by commands. It wraps an
// inner error, preserving the chain for errors.Is and errors.As.
type ToolError struct {
	Category ErrorCategory
	Err      error

	// Hint is an optional next step appended to the message after a
	// blank line.
	Hint string
}

func (e *ToolError) Error() string {
	if e.Hint == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + "\n\n" + e.Hint
}

func (e *ToolError) Unwrap() error { return e.Err }

// ExitCode returns the exit status for the error's category.
func (e *ToolError) ExitCode() int {
	if code, ok := exitCodes[e.Category]; ok {
		return code
	}
	return 1
}

// WithHint sets the hint and returns the receiver for chaining.
func (e *ToolError) WithHint(hint string) *ToolError {
	e.Hint = hint
	return e
}

// Validation creates a validation error: the caller provided bad input.
func Validation(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryValidation, Err: fmt.Errorf(format, args...)}
}

// NotFound creates a not-found error.
func NotFound(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryNotFound, Err: fmt.Errorf(format, args...)}
}

// Forbidden creates a forbidden error.
func Forbidden(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryForbidden, Err: fmt.Errorf(format, args...)}
}

// Transient creates a transient error: a temporary failure that may succeed on retry.
func Transient(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryTransient, Err: fmt.Errorf(format, args...)}
}

// Internal creates an internal error: an unexpected failure, bug, or I/O error.
func Internal(format string, args ...any) *ToolError {
	return &ToolError{Category: CategoryInternal, Err: fmt.Errorf(format, args...)}
}
