package store

import "errors"

// Predefined errors for the store layer.
var (
	// ErrNotFound indicates that a requested resource was not found.
	ErrNotFound = errors.New("resource not found")

	// ErrConflict indicates the row was not in the state the write required,
	// e.g. a status change from a status the proposal no longer has, or a
	// second deposit payment.
	ErrConflict = errors.New("conflict")
)
