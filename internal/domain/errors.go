package domain

import (
	"errors"
	"fmt"
)

// ErrorKind lets callers branch on a failure without string matching.
type ErrorKind string

const (
	KindEmptyOrUnreadableInput ErrorKind = "EmptyOrUnreadableInput"
	KindInvalidMapping         ErrorKind = "InvalidMapping"
	KindUnknownBatch           ErrorKind = "UnknownBatch"
	KindBatchNotMapped         ErrorKind = "BatchNotMapped"
	KindBatchNotValidated      ErrorKind = "BatchNotValidated"
	KindBatchAlreadyCommitted  ErrorKind = "BatchAlreadyCommitted"
	KindBatchFailed            ErrorKind = "BatchFailed"
	KindBatchBusy              ErrorKind = "BatchBusy"
	KindValidationBlocked      ErrorKind = "ValidationBlocked"
	KindInvalidListReference   ErrorKind = "InvalidListReference"
	KindJobAlreadyRunning      ErrorKind = "JobAlreadyRunning"
	KindUnknownJob             ErrorKind = "UnknownJob"
)

// FieldError points at the offending column of a rejected mapping.
type FieldError struct {
	Column  string `json:"column,omitempty"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// Error is a caller-visible failure with a stable kind. Two *Error values
// match under errors.Is when their kinds are equal, so package-level
// sentinels work for detailed instances too.
type Error struct {
	Kind    ErrorKind    `json:"kind"`
	Message string       `json:"message"`
	Fields  []FieldError `json:"fields,omitempty"`
	// Ref carries an identifier related to the failure, such as the id of
	// the job already running for a list reference.
	Ref   string `json:"ref,omitempty"`
	cause error
}

// NewError creates a sentinel-style error of the given kind.
func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Errorf builds a detailed error of the given kind.
func Errorf(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// WithFields returns a copy carrying field-level detail.
func (e *Error) WithFields(fields []FieldError) *Error {
	c := *e
	c.Fields = fields
	return &c
}

// WithRef returns a copy carrying a related identifier.
func (e *Error) WithRef(ref string) *Error {
	c := *e
	c.Ref = ref
	return &c
}

// WithCause returns a copy wrapping an underlying error.
func (e *Error) WithCause(err error) *Error {
	c := *e
	c.cause = err
	return &c
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// KindOf returns the kind of the first *Error in err's chain, or "".
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
