package storage

import "errors"

// Storage errors. Cycle records are append-only: one row per completed
// cycle, never rewritten.
var (
	// ErrNotFound is returned when a requested cycle record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose ID already
	// exists. A finished cycle's record is immutable.
	ErrDuplicateKey = errors.New("duplicate key: append-only store does not allow updates")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
