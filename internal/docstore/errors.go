package docstore

import "errors"

// Common store errors that can be checked using errors.Is().
var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")

	// ErrAlreadyExists is returned when a Create targets an existing key.
	ErrAlreadyExists = errors.New("document already exists")

	// ErrPreconditionFailed is returned when an UpdateIf expectation does not hold.
	ErrPreconditionFailed = errors.New("precondition failed")

	// ErrInvalidInput is returned for malformed collections, keys, fields or queries.
	ErrInvalidInput = errors.New("invalid input")

	// ErrClosed is returned by a store after Close.
	ErrClosed = errors.New("store closed")
)

// IsConflict reports whether err is a lost race on a conditional write.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, ErrPreconditionFailed)
}
