package app

import "errors"

var (
	// ErrValidation marks user-correctable input problems.
	ErrValidation = errors.New("validation failed")
	// ErrUserNotFound is returned for login/verify against an unknown ID.
	ErrUserNotFound = errors.New("User not found")
	// ErrFaceMismatch is returned when the live frame does not match the
	// stored reference descriptor.
	ErrFaceMismatch = errors.New("face does not match registered user")
)
