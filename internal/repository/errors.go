package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrVersionConflict is returned when a ride was modified since it was read.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicate is returned when a uniqueness constraint rejects a write.
	ErrDuplicate = errors.New("duplicate entity")

	// ErrInsufficientBalance is returned when a wallet cannot cover a debit.
	ErrInsufficientBalance = errors.New("insufficient wallet balance")

	// ErrAlreadySettled is returned when ride fare transactions already exist for a ride.
	ErrAlreadySettled = errors.New("ride already settled")
)
