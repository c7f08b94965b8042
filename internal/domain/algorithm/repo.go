package algorithm

import (
	"context"
	"errors"
)

var (
	// ErrNotFound reports an unknown algorithm label (or no default set).
	ErrNotFound = errors.New("algorithm: not found")
	// ErrConflict reports an already-taken label. Stored algorithms are
	// immutable, so the only fix is a new label.
	ErrConflict = errors.New("algorithm: conflict")
	// ErrUnavailable wraps transient storage failures.
	ErrUnavailable = errors.New("algorithm: storage unavailable")
)

type Repository interface {
	// Insert stores a validated configuration. When a.IsDefault is set the
	// previous default loses the flag in the same transaction.
	Insert(ctx context.Context, a *Algorithm) error

	GetByLabel(ctx context.Context, label string) (*Algorithm, error)

	// GetDefault returns the algorithm flagged is_default, or ErrNotFound
	// when none is flagged.
	GetDefault(ctx context.Context) (*Algorithm, error)

	// List returns every stored configuration ordered by label.
	List(ctx context.Context) ([]*Algorithm, error)
}
