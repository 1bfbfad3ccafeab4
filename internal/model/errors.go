package model

import (
	"errors"
	"fmt"
)

// ErrResourceNotFound is returned when a resource id or (type, key) pair does
// not resolve. Transport layers map it to 404.
var ErrResourceNotFound = errors.New("resource not found")

// FieldNotFoundError is an unresolved field reference: a caller defect, fatal
// to the request.
type FieldNotFoundError struct {
	Ref          string
	ResourceType ResourceType
}

func (e *FieldNotFoundError) Error() string {
	return fmt.Sprintf("field %q not found in %s schema", e.Ref, e.ResourceType)
}

// TypeMismatchError is a Value whose shape does not match its Field's type.
// Rejected at the input boundary, never re-validated inside storage.
type TypeMismatchError struct {
	Field  string
	Type   FieldType
	Detail string
}

func (e *TypeMismatchError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("field %q: value does not match type %s: %s", e.Field, e.Type, e.Detail)
	}
	return fmt.Sprintf("field %q: value does not match type %s", e.Field, e.Type)
}

// DuplicateError is a uniqueness violation (e.g. a field name already in use).
// Surfaced as user-correctable.
type DuplicateError struct {
	Kind string
	Name string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s %q already exists", e.Kind, e.Name)
}

// QueryError is a malformed predicate or an unresolved field name in a
// filter. The compiler fails closed: nothing reaches the database.
type QueryError struct {
	Detail string
}

func (e *QueryError) Error() string {
	return "query: " + e.Detail
}

// ValidationError is invalid input outside the query path: a bad field
// definition, a disallowed mutation. Surfaced as user-correctable.
type ValidationError struct {
	Detail string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Detail
}

// IsNotFound reports whether err is a missing-resource or missing-field error.
func IsNotFound(err error) bool {
	var fnf *FieldNotFoundError
	return errors.Is(err, ErrResourceNotFound) || errors.As(err, &fnf)
}

// IsUserError reports whether err should map to a 400-class response.
func IsUserError(err error) bool {
	var (
		tm  *TypeMismatchError
		dup *DuplicateError
		qe  *QueryError
		ve  *ValidationError
	)
	return errors.As(err, &tm) || errors.As(err, &dup) || errors.As(err, &qe) || errors.As(err, &ve)
}
