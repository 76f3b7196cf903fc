package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCode classifies vision domain failures.
type ErrorCode string

const (
	CodeValueConstruction   ErrorCode = "value_construction"
	CodeAggregateValidation ErrorCode = "aggregate_validation"
	CodeDuplicateObjective  ErrorCode = "duplicate_objective"
	CodeNotFound            ErrorCode = "not_found"
	CodeRange               ErrorCode = "range"
	CodeReference           ErrorCode = "reference"
	CodeConflict            ErrorCode = "conflict"
)

// Error carries every violated invariant of a rejected construction or mutation.
type Error struct {
	Code       ErrorCode
	Op         string
	Message    string
	Violations []string
	Cause      error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := strings.TrimSpace(e.Message)
	if len(e.Violations) > 0 {
		joined := strings.Join(e.Violations, "; ")
		if msg == "" {
			msg = joined
		} else {
			msg = msg + ": " + joined
		}
	}
	op := strings.TrimSpace(e.Op)
	switch {
	case op != "" && msg != "":
		return fmt.Sprintf("%s: %s (%s)", op, msg, e.Code)
	case op != "":
		return fmt.Sprintf("%s (%s)", op, e.Code)
	case msg != "":
		return fmt.Sprintf("%s (%s)", msg, e.Code)
	default:
		return string(e.Code)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(code ErrorCode, op, message string, violations ...string) error {
	return &Error{
		Code:       code,
		Op:         op,
		Message:    message,
		Violations: append([]string(nil), violations...),
	}
}

// NewError builds a domain error for callers assembling values outside this package.
func NewError(code ErrorCode, op, message string, violations ...string) error {
	return newError(code, op, message, violations...)
}

func constructionError(op string, violations []string) error {
	return newError(CodeValueConstruction, op, "invalid value", violations...)
}

// IsCode reports whether err (or a wrapped err) is a domain error with code.
func IsCode(err error, code ErrorCode) bool {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return false
	}
	return dErr.Code == code
}

// CodeOf extracts the domain error code, or "" for foreign errors.
func CodeOf(err error) ErrorCode {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return ""
	}
	return dErr.Code
}

// ViolationsOf returns the violation list carried by a domain error.
func ViolationsOf(err error) []string {
	var dErr *Error
	if !errors.As(err, &dErr) {
		return nil
	}
	return append([]string(nil), dErr.Violations...)
}
