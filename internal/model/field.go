// Package model defines the records produced by the directory pipeline.
package model

import (
	"encoding/json"
	"errors"
)

// Absence reasons. Fetch errors are carried as-is so callers can tell
// transient network failures apart from permanent markup problems.
var (
	ErrMissing       = errors.New("value not present")
	ErrMalformed     = errors.New("value malformed")
	ErrNotAttempted  = errors.New("prerequisite fields absent")
	ErrNoResults     = errors.New("no results")
	ErrNotConfigured = errors.New("source not configured")
)

// Field holds either a value or the reason it is absent. The zero Field is
// absent with ErrMissing.
type Field[T any] struct {
	value  T
	valid  bool
	reason error
}

// Some returns a present Field.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, valid: true}
}

// Absent returns a Field with no value. A nil reason means ErrMissing.
func Absent[T any](reason error) Field[T] {
	if reason == nil {
		reason = ErrMissing
	}
	return Field[T]{reason: reason}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.valid
}

// Valid reports whether the field holds a value.
func (f Field[T]) Valid() bool { return f.valid }

// OrZero returns the value, or T's zero value when absent.
func (f Field[T]) OrZero() T { return f.value }

// Reason returns why the field is absent, or nil when present.
func (f Field[T]) Reason() error {
	if f.valid {
		return nil
	}
	if f.reason == nil {
		return ErrMissing
	}
	return f.reason
}

// MarshalJSON writes the value, or null when absent.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}
