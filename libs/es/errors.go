package es

import (
	"errors"
	"fmt"
	"strings"
)

// Code classifies write-path failures so callers can decide between surfacing,
// retrying and alerting without string matching.
type Code string

const (
	CodeDomainRuleViolation Code = "domain_rule_violation"
	CodeConcurrencyConflict Code = "concurrency_conflict"
	CodeSchemaMismatch      Code = "schema_mismatch"
	CodeNotFound            Code = "not_found"
	CodeValidation          Code = "validation"
)

var (
	ErrDomainRuleViolation = &Error{Code: CodeDomainRuleViolation}
	ErrConcurrencyConflict = &Error{Code: CodeConcurrencyConflict}
	ErrSchemaMismatch      = &Error{Code: CodeSchemaMismatch}
	ErrNotFound            = &Error{Code: CodeNotFound}
	ErrValidation          = &Error{Code: CodeValidation}
)

// Error is the canonical write-model error. Rule is the stable identifier of the
// violated invariant and is only set for domain rule violations.
type Error struct {
	Code    Code
	Op      string
	Rule    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(string(e.Code))
	}
	if e.Rule != "" {
		fmt.Fprintf(&b, " [%s]", e.Rule)
	}
	fmt.Fprintf(&b, " (%s)", e.Code)
	return b.String()
}

func (e *Error) Unwrap() error { return e.Cause }

// Is matches on code so errors.Is(err, ErrConcurrencyConflict) works for any conflict.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Rule == "" || t.Rule == e.Rule)
}

// Violation reports a broken business invariant. It is never retried.
func Violation(op, rule, message string) error {
	return &Error{Code: CodeDomainRuleViolation, Op: op, Rule: rule, Message: message}
}

// Conflict reports that a stream advanced past the version the caller loaded.
func Conflict(op, streamID string, expected, actual int64) error {
	return &Error{
		Code:    CodeConcurrencyConflict,
		Op:      op,
		Message: fmt.Sprintf("stream %s is at version %d, expected %d", streamID, actual, expected),
	}
}

// SchemaMismatch reports events the fold cannot interpret. It signals a deploy defect.
func SchemaMismatch(op, message string, cause error) error {
	return &Error{Code: CodeSchemaMismatch, Op: op, Message: message, Cause: cause}
}

func NotFound(op, message string) error {
	return &Error{Code: CodeNotFound, Op: op, Message: message}
}

func Invalid(op, message string) error {
	return &Error{Code: CodeValidation, Op: op, Message: message}
}

func IsCode(err error, code Code) bool {
	return CodeOf(err) == code
}

func CodeOf(err error) Code {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Code
}

// RuleOf returns the violated invariant name of a domain rule violation.
func RuleOf(err error) string {
	var e *Error
	if !errors.As(err, &e) {
		return ""
	}
	return e.Rule
}
