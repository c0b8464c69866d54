package capability

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for capability tokens.
type Repository interface {
	Create(ctx context.Context, t *Token) error

	GetByID(ctx context.Context, id uuid.UUID) (*Token, error)

	// DeactivateForSubject marks every active token of the subject inactive
	// and returns the count. Issue calls it first so at most one live token
	// exists per subject.
	DeactivateForSubject(ctx context.Context, subjectID uuid.UUID) (int, error)

	// Deactivate marks a single token inactive. Returns ErrNotFound when no
	// such token exists.
	Deactivate(ctx context.Context, id uuid.UUID) error

	// DeleteExpired removes tokens whose validity window has lapsed and
	// returns the count.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
