package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for the failure kinds surfaced to the UI shell.
var (
	// ErrValidation is returned before any persistence attempt when a required
	// field is empty or malformed.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned when a target user or conversation does not exist.
	ErrNotFound = errors.New("requested resource not found")

	// ErrStoreUnavailable is returned when the underlying document store call
	// fails or times out.
	ErrStoreUnavailable = errors.New("document store unavailable")

	// ErrDeliveryConflict marks a deferred message that another trigger already
	// delivered. Callers treat it as a successful no-op.
	ErrDeliveryConflict = errors.New("deferred message already delivered")

	// ErrForbidden is returned when a session mutates a record it does not own.
	ErrForbidden = errors.New("operation not permitted for this user")
)
