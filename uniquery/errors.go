package uniquery

import (
	"errors"
	"fmt"
)

// ErrorKind classifies errors raised by the emulation layer. Backend errors
// are never wrapped into these kinds; they pass through unmodified.
type ErrorKind string

const (
	ErrValidation          ErrorKind = "validation"
	ErrUnknownField        ErrorKind = "unknown_field"
	ErrUnknownCollection   ErrorKind = "unknown_collection"
	ErrTypeMismatch        ErrorKind = "type_mismatch"
	ErrUnsupportedOperator ErrorKind = "unsupported_operator"
	ErrMissingSchema       ErrorKind = "missing_schema_element"
	ErrUnprocessable       ErrorKind = "unprocessable"
)

type Error struct {
	Kind    ErrorKind
	Message string
	Field   string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	base := fmt.Sprintf("%s: %s", e.Kind, e.Message)
	if e.Field != "" {
		base = fmt.Sprintf("%s (field=%s)", base, e.Field)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", base, e.Cause)
	}
	return base
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func NewError(kind ErrorKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func ValidationError(field, msg string) *Error {
	return &Error{Kind: ErrValidation, Message: msg, Field: field}
}

func UnknownFieldError(field string) *Error {
	return &Error{Kind: ErrUnknownField, Message: "unknown field", Field: field}
}

func UnknownCollectionError(name string) *Error {
	return &Error{Kind: ErrUnknownCollection, Message: fmt.Sprintf("collection not found: %s", name)}
}

func TypeMismatchError(field, msg string) *Error {
	return &Error{Kind: ErrTypeMismatch, Message: msg, Field: field}
}

func UnsupportedOperatorError(field, msg string) *Error {
	return &Error{Kind: ErrUnsupportedOperator, Message: msg, Field: field}
}

// MissingSchemaError marks references to fields or collections that were
// removed by customization. Enclosing layers may downgrade this kind to a
// warning; everything else is fatal.
func MissingSchemaError(msg string) *Error {
	return &Error{Kind: ErrMissingSchema, Message: msg}
}

func UnprocessableError(msg string) *Error {
	return &Error{Kind: ErrUnprocessable, Message: msg}
}

func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}
