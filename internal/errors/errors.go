// Package errors provides structured error types for devdesk.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"regexp"
	"strings"
)

// Code represents a unique error code.
type Code string

// Error codes for devdesk.
const (
	CodeNotFound     Code = "NOT_FOUND"
	CodeDuplicate    Code = "DUPLICATE"
	CodeInvalid      Code = "INVALID"
	CodeBusinessRule Code = "BUSINESS_RULE"
	CodeConstraint   Code = "CONSTRAINT"
	CodeSetupFailed  Code = "SETUP_FAILED"
	CodeUnknownOp    Code = "UNKNOWN_OP"
	CodeInternal     Code = "INTERNAL"
)

// Category groups error codes for the bridge and CLI exit handling.
type Category int

const (
	CategoryUnknown Category = iota
	CategoryNotFound
	CategoryBadRequest
	CategoryConflict
	CategoryInternal
)

var codeCategories = map[Code]Category{
	CodeNotFound:     CategoryNotFound,
	CodeDuplicate:    CategoryConflict,
	CodeInvalid:      CategoryBadRequest,
	CodeBusinessRule: CategoryConflict,
	CodeConstraint:   CategoryConflict,
	CodeSetupFailed:  CategoryInternal,
	CodeUnknownOp:    CategoryBadRequest,
	CodeInternal:     CategoryInternal,
}

func (c Category) String() string {
	switch c {
	case CategoryNotFound:
		return "not_found"
	case CategoryBadRequest:
		return "bad_request"
	case CategoryConflict:
		return "conflict"
	case CategoryInternal:
		return "internal"
	default:
		return "unknown"
	}
}

// AppError is the structured error type for devdesk.
type AppError struct {
	Code  Code   `json:"code"`
	What  string `json:"what"`
	Why   string `json:"why,omitempty"`
	Field string `json:"field,omitempty"`
	Cause error  `json:"-"`
}

// Error implements the error interface.
func (e *AppError) Error() string {
	var b strings.Builder
	b.WriteString(e.What)
	if e.Why != "" {
		b.WriteString(": ")
		b.WriteString(e.Why)
	}
	if e.Cause != nil {
		b.WriteString(": ")
		b.WriteString(e.Cause.Error())
	}
	return b.String()
}

// Unwrap returns the underlying cause.
func (e *AppError) Unwrap() error {
	return e.Cause
}

// Category returns the error category.
func (e *AppError) Category() Category {
	if cat, ok := codeCategories[e.Code]; ok {
		return cat
	}
	return CategoryUnknown
}

// MarshalJSON implements json.Marshaler.
func (e *AppError) MarshalJSON() ([]byte, error) {
	type alias AppError
	aux := struct {
		*alias
		CauseMsg string `json:"cause,omitempty"`
	}{
		alias: (*alias)(e),
	}
	if e.Cause != nil {
		aux.CauseMsg = e.Cause.Error()
	}
	return json.Marshal(aux)
}

// Is reports whether target is an AppError with the same code.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the error with the given cause.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Cause = err
	return &cp
}

// Sentinels for errors.Is comparisons by code.
var (
	ErrNotFound     = &AppError{Code: CodeNotFound}
	ErrDuplicate    = &AppError{Code: CodeDuplicate}
	ErrInvalid      = &AppError{Code: CodeInvalid}
	ErrBusinessRule = &AppError{Code: CodeBusinessRule}
	ErrConstraint   = &AppError{Code: CodeConstraint}
	ErrSetupFailed  = &AppError{Code: CodeSetupFailed}
)

// --- Error constructors ---

// NotFound reports a missing record.
func NotFound(entity, id string) *AppError {
	return &AppError{
		Code: CodeNotFound,
		What: fmt.Sprintf("%s not found", entity),
		Why:  fmt.Sprintf("no %s with id %q", entity, id),
	}
}

// Duplicate reports a uniqueness violation on a named field.
func Duplicate(entity, field, value string) *AppError {
	return &AppError{
		Code:  CodeDuplicate,
		What:  fmt.Sprintf("%s %s already exists", entity, field),
		Why:   fmt.Sprintf("%s %q is taken", field, value),
		Field: field,
	}
}

// Invalid reports a field that failed validation.
func Invalid(field, why string) *AppError {
	return &AppError{
		Code:  CodeInvalid,
		What:  fmt.Sprintf("invalid %s", field),
		Why:   why,
		Field: field,
	}
}

// BusinessRule reports an operation refused by a dependency guard.
func BusinessRule(what, why string) *AppError {
	return &AppError{
		Code: CodeBusinessRule,
		What: what,
		Why:  why,
	}
}

// SetupFailed wraps a schema creation or migration failure.
func SetupFailed(cause error) *AppError {
	return &AppError{
		Code:  CodeSetupFailed,
		What:  "database setup failed",
		Cause: cause,
	}
}

// Constraint wraps an engine constraint violation that could not be
// detected before the write.
func Constraint(cause error) *AppError {
	return &AppError{
		Code:  CodeConstraint,
		What:  "constraint violation",
		Cause: cause,
	}
}

// UnknownOp reports a bridge operation that has no handler.
func UnknownOp(op string) *AppError {
	return &AppError{
		Code: CodeUnknownOp,
		What: fmt.Sprintf("unknown operation %q", op),
	}
}

// Internal reports an unexpected failure, such as a recovered panic.
func Internal(what string, cause error) *AppError {
	return &AppError{
		Code:  CodeInternal,
		What:  what,
		Cause: cause,
	}
}

var uniqueRe = regexp.MustCompile(`UNIQUE constraint failed: ([A-Za-z_]+)\.([A-Za-z_]+)`)

// FromConstraint converts an engine constraint violation into an AppError.
// Errors that are not constraint violations are returned unchanged.
func FromConstraint(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	if m := uniqueRe.FindStringSubmatch(msg); m != nil {
		return &AppError{
			Code:  CodeDuplicate,
			What:  fmt.Sprintf("%s %s already exists", strings.TrimSuffix(m[1], "s"), m[2]),
			Field: m[2],
			Cause: err,
		}
	}
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"),
		strings.Contains(msg, "FOREIGN KEY constraint failed"),
		strings.Contains(msg, "NOT NULL constraint failed"),
		strings.Contains(msg, "CHECK constraint failed"):
		return Constraint(err)
	}
	return err
}

// CodeOf returns the code of the first AppError in err's chain,
// or CodeInternal when there is none.
func CodeOf(err error) Code {
	var ae *AppError
	if stderrors.As(err, &ae) {
		return ae.Code
	}
	return CodeInternal
}

// As is a convenience wrapper around the standard library's errors.As
// for AppError.
func As(err error) (*AppError, bool) {
	var ae *AppError
	ok := stderrors.As(err, &ae)
	return ae, ok
}
