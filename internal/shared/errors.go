package shared

import "errors"

// Error taxonomy. Domain packages wrap one of these so that both the HTTP
// layer and the transaction runner can classify failures with errors.Is.
var (
	// ErrNotFound indicates a missing entity.
	ErrNotFound = errors.New("not found")
	// ErrInvalidState indicates an operation illegal for the current status.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates rejected input.
	ErrValidation = errors.New("validation failed")
	// ErrConcurrencyConflict indicates a lost update was detected; retryable once.
	ErrConcurrencyConflict = errors.New("concurrency conflict")
	// ErrExternalDependency indicates a missing reference owned by a collaborator.
	ErrExternalDependency = errors.New("external dependency failed")
)
