package subject

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines the persistence interface for the subject directory.
type Repository interface {
	Create(ctx context.Context, s *Subject) error
	GetByID(ctx context.Context, id uuid.UUID) (*Subject, error)
	GetByContact(ctx context.Context, contact string) (*Subject, error)
	UpdatePushToken(ctx context.Context, id uuid.UUID, token *string) error
}
