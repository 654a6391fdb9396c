package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when inserting a record whose key already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")

	// ErrReadOnly is returned when a write is attempted inside View.
	ErrReadOnly = errors.New("write in read-only transaction")

	// ErrConflict is returned when a transaction lost a race with another
	// writer and was rolled back. The whole operation may be retried.
	ErrConflict = errors.New("transaction conflict")
)
