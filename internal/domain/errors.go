package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Sentinels matched by errors.Is against the typed errors below.
var (
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("conflict")
	ErrNotFound           = errors.New("not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// ValidationError reports structurally invalid input, keyed by field name.
type ValidationError struct {
	Fields map[string]string
}

func NewValidationError(field, reason string) *ValidationError {
	return &ValidationError{Fields: map[string]string{field: reason}}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	parts := make([]string, 0, len(names))
	for _, name := range names {
		parts = append(parts, name+" "+e.Fields[name])
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// ConflictError reports a violated uniqueness constraint.
type ConflictError struct {
	Entity string
	Field  string
	Value  string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s %s already exists", e.Entity, e.Field)
	}
	return fmt.Sprintf("%s %s %q already exists", e.Entity, e.Field, e.Value)
}

func (e *ConflictError) Unwrap() error { return e.Err }

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// NotFoundError reports a unique-key lookup miss.
type NotFoundError struct {
	Entity string
	Key    string
	Value  any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s with %s %v not found", e.Entity, e.Key, e.Value)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// StorageUnavailableError reports a storage engine connection failure.
type StorageUnavailableError struct {
	Op  string
	Err error
}

func (e *StorageUnavailableError) Error() string {
	return fmt.Sprintf("%s: storage unavailable: %v", e.Op, e.Err)
}

func (e *StorageUnavailableError) Unwrap() error { return e.Err }

func (e *StorageUnavailableError) Is(target error) bool { return target == ErrStorageUnavailable }
