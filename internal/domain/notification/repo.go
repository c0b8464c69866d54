package notification

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for the notification ledger.
type Repository interface {
	Create(ctx context.Context, r *Record) error

	// ListByRecipient returns the recipient's records newest first, plus the
	// total count for pagination.
	ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*Record, int, error)

	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error)

	// MarkRead flips a single record. Returns ErrNotFound for unknown ids
	// and ErrForbidden when the record belongs to someone else.
	MarkRead(ctx context.Context, id, recipientID uuid.UUID) error

	// MarkAllRead flips every unread record of the recipient and returns the
	// count.
	MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error)
}
