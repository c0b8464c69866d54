package grant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/subject"
)

// Directory is the narrow view of the subject directory the grant service
// needs: existence checks and read-only summaries.
type Directory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Summary(ctx context.Context, id uuid.UUID) (*subject.Summary, error)
}

// Notifier publishes a notification event after a state change. The ledger
// write inside it is authoritative; delivery is best effort. A nil Notifier
// disables fanout.
type Notifier interface {
	Notify(ctx context.Context, recipientID uuid.UUID, recipientRole string, senderID *uuid.UUID, senderRole, kind string, payload any) error
}

// Notification kinds emitted by the grant service.
const (
	kindAccessRequest  = "access_request"
	kindAccessResponse = "access_response"
)

type Service struct {
	repo     Repository
	subjects Directory
	notifier Notifier
	window   time.Duration
	logger   zerolog.Logger
	now      func() time.Time
}

func NewService(repo Repository, subjects Directory, notifier Notifier, window time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		subjects: subjects,
		notifier: notifier,
		window:   window,
		logger:   logger,
		now:      time.Now,
	}
}

// CreateRequest opens a pending consent session from a requester towards a
// subject. requesterID is nil for anonymous requesters, which skip the
// duplicate-session check: with no stable identity there is nothing to
// deduplicate on.
func (s *Service) CreateRequest(ctx context.Context, requesterID *uuid.UUID, subjectID uuid.UUID, label string) (*ConsentSession, error) {
	now := s.now()

	exists, err := s.subjects.Exists(ctx, subjectID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrSubjectNotFound
	}

	// Expired rows would otherwise satisfy the store's active-pair
	// uniqueness constraint and block a legitimate new request.
	if _, err := s.repo.DeleteExpired(ctx, now); err != nil {
		s.logger.Warn().Err(err).Msg("expiry sweep before create failed")
	}

	if requesterID != nil {
		if _, err := s.repo.FindActive(ctx, *requesterID, subjectID, now); err == nil {
			return nil, ErrDuplicateActiveGrant
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	if label == "" {
		label = AnonymousLabel
		if requesterID != nil {
			if sum, err := s.subjects.Summary(ctx, *requesterID); err == nil {
				label = sum.Name
			}
		}
	}

	sess := &ConsentSession{
		ID:           uuid.New(),
		RequesterID:  requesterID,
		SubjectID:    subjectID,
		Status:       StatusPending,
		RequestLabel: label,
		ExpiresAt:    now.Add(s.window),
		CreatedAt:    now,
	}
	if err := s.repo.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.notify(ctx, subjectID, "patient", requesterID, "clinician", kindAccessRequest, map[string]any{
		"session_id": sess.ID,
		"label":      sess.RequestLabel,
		"expires_at": sess.ExpiresAt,
	})

	return sess, nil
}

// Respond applies the subject's decision to a pending session. Acceptance
// resets the window so it measures time since the grant became active, not
// time since it was requested. The underlying update is conditional on the
// pending status, so of two concurrent responses exactly one wins and the
// other observes ErrAlreadyResolved.
func (s *Service) Respond(ctx context.Context, sessionID, byID uuid.UUID, decision string) (*ConsentSession, error) {
	if decision != DecisionAccepted && decision != DecisionDeclined {
		return nil, ErrInvalidDecision
	}

	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.SubjectID != byID {
		return nil, ErrForbidden
	}
	if sess.Status != StatusPending {
		return nil, ErrAlreadyResolved
	}

	now := s.now()
	if sess.IsExpired(now) {
		return nil, ErrExpired
	}

	var newExpiry *time.Time
	if decision == DecisionAccepted {
		e := now.Add(s.window)
		newExpiry = &e
	}

	won, err := s.repo.Resolve(ctx, sessionID, Status(decision), now, newExpiry)
	if err != nil {
		return nil, err
	}
	if !won {
		return nil, ErrAlreadyResolved
	}

	sess.Status = Status(decision)
	sess.RespondedAt = &now
	if newExpiry != nil {
		sess.ExpiresAt = *newExpiry
	}

	if sess.RequesterID != nil {
		subjectIDCopy := sess.SubjectID
		s.notify(ctx, *sess.RequesterID, "clinician", &subjectIDCopy, "patient", kindAccessResponse, map[string]any{
			"session_id": sess.ID,
			"decision":   decision,
			"expires_at": sess.ExpiresAt,
		})
	}

	return sess, nil
}

// IsGranted is the single predicate the access gate depends on: an accepted,
// unexpired session exists for the pair. It reads the store every time;
// grants are revocable only by time and must never outlive their window.
func (s *Service) IsGranted(ctx context.Context, requesterID, subjectID uuid.UUID) (bool, error) {
	return s.repo.IsGranted(ctx, requesterID, subjectID, s.now())
}

// SweepExpired deletes lapsed sessions. Idempotent; run on a timer and
// opportunistically before grant checks.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

// Status returns the session view for either party.
func (s *Service) Status(ctx context.Context, sessionID, callerID uuid.UUID) (*View, error) {
	sess, err := s.repo.GetByID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	isRequester := sess.RequesterID != nil && *sess.RequesterID == callerID
	if sess.SubjectID != callerID && !isRequester {
		return nil, ErrForbidden
	}
	v := sess.View(s.now())
	return &v, nil
}

// AcceptedGrant pairs an accepted session with the subject it grants access
// to.
type AcceptedGrant struct {
	Session View            `json:"session"`
	Subject subject.Summary `json:"subject"`
}

// ListAccepted returns the requester's currently usable grants with subject
// summaries and expiry metadata.
func (s *Service) ListAccepted(ctx context.Context, requesterID uuid.UUID) ([]AcceptedGrant, error) {
	now := s.now()
	sessions, err := s.repo.ListAcceptedByRequester(ctx, requesterID, now)
	if err != nil {
		return nil, err
	}

	grants := make([]AcceptedGrant, 0, len(sessions))
	for _, sess := range sessions {
		g := AcceptedGrant{Session: sess.View(now)}
		if sum, err := s.subjects.Summary(ctx, sess.SubjectID); err == nil {
			g.Subject = *sum
		}
		grants = append(grants, g)
	}
	return grants, nil
}

func (s *Service) notify(ctx context.Context, recipientID uuid.UUID, recipientRole string, senderID *uuid.UUID, senderRole, kind string, payload any) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, recipientID, recipientRole, senderID, senderRole, kind, payload); err != nil {
		s.logger.Error().Err(err).Str("kind", kind).Stringer("recipient", recipientID).
			Msg("notification failed")
	}
}
