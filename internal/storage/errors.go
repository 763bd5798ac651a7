package storage

import "errors"

// Storage errors shared by every backend.
var (
	// ErrNotFound is returned when a requested record does not exist.
	// Callers must distinguish this from a read failure.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when attempting to insert a record
	// with a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrAlreadyFinal is returned when finalizing an intent that is
	// already in a terminal state. Terminal records never transition.
	ErrAlreadyFinal = errors.New("intent already finalized")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
