package registry

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrNotFound covers absent tokens and absent users addressed directly.
	ErrNotFound = errors.New("not_found")
	// ErrUserNotFound is returned when an operation on a token collection
	// references a user that does not exist.
	ErrUserNotFound = errors.New("user_not_found")
	// ErrConflict is returned by CreateUser when the user id already exists.
	ErrConflict = errors.New("already_exists")
	// ErrNotModified signals a no-op rename. It is a success condition, not a
	// failure: HTTP maps it to 304.
	ErrNotModified = errors.New("not_modified")
	ErrValidation  = errors.New("validation")
)

// ValidationError reports which fields of a registration body were missing,
// empty, or unexpected.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}
