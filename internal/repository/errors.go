package repository

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates an insert lost a uniqueness race.
	ErrConflict = errors.New("repository: conflict")
	// ErrInsufficientPoints indicates a conditional point deduction found too
	// low a balance.
	ErrInsufficientPoints = errors.New("repository: insufficient points")
)
