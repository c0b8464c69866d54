package subject

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, sub *Subject) error {
	if sub.Name == "" {
		return fmt.Errorf("subject name is required")
	}
	if sub.Role != "patient" && sub.Role != "clinician" {
		return fmt.Errorf("subject role must be patient or clinician, got %q", sub.Role)
	}
	return s.repo.Create(ctx, sub)
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return s.repo.GetByID(ctx, id)
}

// Exists reports whether the directory knows the given subject id.
func (s *Service) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Summary returns the read-only view of a subject.
func (s *Service) Summary(ctx context.Context, id uuid.UUID) (*Summary, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	sum := sub.Summary()
	return &sum, nil
}

// ResolveContact maps an email or phone to a subject id. found is false for
// unknown addresses so callers can distinguish "no such subject" from a
// lookup failure.
func (s *Service) ResolveContact(ctx context.Context, contact string) (uuid.UUID, bool, error) {
	sub, err := s.repo.GetByContact(ctx, contact)
	if errors.Is(err, ErrNotFound) {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	return sub.ID, true, nil
}

// RegisterPushToken stores (or clears, with nil) a subject's push-capable
// device address.
func (s *Service) RegisterPushToken(ctx context.Context, id uuid.UUID, token *string) error {
	return s.repo.UpdatePushToken(ctx, id, token)
}

// PushAddress returns the subject's registered device address, if any.
func (s *Service) PushAddress(ctx context.Context, id uuid.UUID) (string, bool, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if sub.PushToken == nil || *sub.PushToken == "" {
		return "", false, nil
	}
	return *sub.PushToken, true, nil
}
