package models

import "errors"

var (
	// ErrConfig marks a malformed station graph. It is rejected before solving.
	ErrConfig = errors.New("invalid configuration")

	// ErrInvalidInput marks a request the caller must fix before retrying.
	ErrInvalidInput = errors.New("invalid input")

	ErrNotFound = errors.New("not found")

	// ErrDependency wraps failures of the ledger or the relationship store.
	ErrDependency = errors.New("dependency failure")
)
