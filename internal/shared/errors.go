package shared

import "errors"

var (
	// ErrNotFound indicates a referenced entity is missing or inactive.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument indicates structurally invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrForbidden indicates a request that must not be honoured, e.g. a path/body id mismatch.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthorized indicates a missing or invalid bearer token.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyExists indicates a uniqueness violation.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict indicates lock contention; the caller may retry.
	ErrConflict = errors.New("conflict")
	// ErrFatal indicates a partial write was detected inside a transaction.
	ErrFatal = errors.New("fatal")
)
