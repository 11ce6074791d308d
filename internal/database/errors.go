package database

import "errors"

var (
	// ErrConflict: the requested room interval overlaps an active booking.
	ErrConflict = errors.New("room is not available for the requested dates")

	// ErrConcurrentModification: optimistic version check failed.
	ErrConcurrentModification = errors.New("record was modified concurrently")

	// ErrNotFound: no row for the given key.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateAward: a loyalty award with this reference already exists.
	ErrDuplicateAward = errors.New("loyalty award already recorded")

	// ErrInvalidTransition: external booking status machine violation.
	ErrInvalidTransition = errors.New("invalid booking status transition")

	// ErrInvalidBounds: rate configuration with min rate above max rate.
	ErrInvalidBounds = errors.New("rate configuration bounds are invalid")
)
