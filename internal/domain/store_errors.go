package domain

import (
	"context"
	"errors"
	"fmt"

	"github.com/nfrund/classhub/internal/docstore"
)

// StoreError translates a docstore failure into the domain error kinds while
// keeping the original error in the chain. Conflicts and caller cancellation
// pass through unchanged.
func StoreError(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), docstore.IsConflict(err):
		return err
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%s: %w: %w", op, ErrNotFound, err)
	case errors.Is(err, docstore.ErrInvalidInput):
		return fmt.Errorf("%s: %w: %w", op, ErrValidation, err)
	default:
		return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
	}
}
