package grant

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for consent sessions.
type Repository interface {
	// Create inserts a pending session. Implementations backed by a store
	// with the active-session uniqueness constraint return
	// ErrDuplicateActiveGrant when a pending or accepted session already
	// exists for the same (requester, subject) pair.
	Create(ctx context.Context, s *ConsentSession) error

	GetByID(ctx context.Context, id uuid.UUID) (*ConsentSession, error)

	// FindActive returns the unexpired pending or accepted session for the
	// pair, or ErrNotFound.
	FindActive(ctx context.Context, requesterID, subjectID uuid.UUID, now time.Time) (*ConsentSession, error)

	// Resolve conditionally moves a session out of pending. expiresAt, when
	// non-nil, replaces the stored expiry (acceptance resets the window).
	// Returns false when the session was not pending anymore; exactly one of
	// two concurrent resolutions observes true.
	Resolve(ctx context.Context, id uuid.UUID, status Status, respondedAt time.Time, expiresAt *time.Time) (bool, error)

	// IsGranted reports whether an accepted, unexpired session exists for
	// the pair.
	IsGranted(ctx context.Context, requesterID, subjectID uuid.UUID, now time.Time) (bool, error)

	// ListAcceptedByRequester returns the requester's accepted, unexpired
	// sessions ordered by expiry.
	ListAcceptedByRequester(ctx context.Context, requesterID uuid.UUID, now time.Time) ([]*ConsentSession, error)

	// DeleteExpired removes every session whose window has lapsed and
	// returns the count. Idempotent and safe to run concurrently with any
	// other operation.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
