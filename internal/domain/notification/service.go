package notification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/subject"
	"github.com/carelink/carelink/internal/platform/stream"
)

// ErrRecipientNotFound is returned when a reminder targets an unknown
// subject.
var ErrRecipientNotFound = errors.New("recipient not found")

// Broadcaster delivers an event to live connections matching the recipient
// by id or by role. A nil Broadcaster disables live delivery.
type Broadcaster interface {
	Broadcast(recipientID uuid.UUID, recipientRole, eventType string, data any)
}

// PushSender delivers a push message to a device address.
type PushSender interface {
	Send(ctx context.Context, deviceToken, title, body string, data map[string]string) error
}

// Directory resolves recipients and their push addresses.
type Directory interface {
	Summary(ctx context.Context, id uuid.UUID) (*subject.Summary, error)
	PushAddress(ctx context.Context, id uuid.UUID) (string, bool, error)
}

type Service struct {
	repo        Repository
	subjects    Directory
	broadcaster Broadcaster
	push        PushSender
	pushTimeout time.Duration
	logger      zerolog.Logger
	now         func() time.Time
}

func NewService(repo Repository, subjects Directory, broadcaster Broadcaster, push PushSender, pushTimeout time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:        repo,
		subjects:    subjects,
		broadcaster: broadcaster,
		push:        push,
		pushTimeout: pushTimeout,
		logger:      logger,
		now:         time.Now,
	}
}

// Notify records an event in the ledger and fans it out. The ledger write is
// the only step that can fail the call; a recipient who is offline and
// unreachable by push still finds the record on next poll.
func (s *Service) Notify(ctx context.Context, recipientID uuid.UUID, recipientRole string, senderID *uuid.UUID, senderRole, kind string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	rec := &Record{
		ID:            uuid.New(),
		RecipientID:   recipientID,
		RecipientRole: recipientRole,
		SenderID:      senderID,
		SenderRole:    senderRole,
		Kind:          kind,
		Payload:       raw,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return err
	}

	if s.broadcaster != nil {
		s.broadcaster.Broadcast(recipientID, recipientRole, stream.EventNewNotification, rec)
	}

	s.sendPush(recipientID, rec)
	return nil
}

// Remind records a reminder for the recipient, typically a clinician nudging
// a patient about a pending request.
func (s *Service) Remind(ctx context.Context, senderID uuid.UUID, senderRole string, recipientID uuid.UUID, message string) error {
	sum, err := s.subjects.Summary(ctx, recipientID)
	if errors.Is(err, subject.ErrNotFound) {
		return ErrRecipientNotFound
	}
	if err != nil {
		return err
	}
	sender := senderID
	return s.Notify(ctx, recipientID, sum.Role, &sender, senderRole, KindReminder, map[string]string{
		"message": message,
	})
}

// List returns a page of the recipient's ledger, newest first.
func (s *Service) List(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	return s.repo.ListByRecipient(ctx, recipientID, limit, offset)
}

func (s *Service) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.repo.UnreadCount(ctx, recipientID)
}

// MarkRead flips a single record; only its recipient may do so.
func (s *Service) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	return s.repo.MarkRead(ctx, id, recipientID)
}

func (s *Service) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	return s.repo.MarkAllRead(ctx, recipientID)
}

// sendPush delivers asynchronously. The request context is not reused: the
// HTTP response must not wait on the push provider.
func (s *Service) sendPush(recipientID uuid.UUID, rec *Record) {
	if s.push == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.pushTimeout)
		defer cancel()

		addr, ok, err := s.subjects.PushAddress(ctx, recipientID)
		if err != nil || !ok {
			return
		}
		title, body := pushText(rec.Kind)
		if err := s.push.Send(ctx, addr, title, body, map[string]string{
			"kind":            rec.Kind,
			"notification_id": rec.ID.String(),
		}); err != nil {
			s.logger.Warn().Err(err).Str("kind", rec.Kind).Stringer("recipient", recipientID).
				Msg("push delivery failed")
		}
	}()
}

func pushText(kind string) (title, body string) {
	switch kind {
	case KindAccessRequest:
		return "Access request", "Someone is requesting access to your records"
	case KindAccessResponse:
		return "Request answered", "Your access request has been answered"
	case KindNewDocument:
		return "New document", "A new document was added to your records"
	case KindReminder:
		return "Reminder", "You have a pending request waiting"
	default:
		return "Notification", "You have a new notification"
	}
}
