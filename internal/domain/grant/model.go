// Package grant implements consent sessions: time-boxed, subject-approved
// grants of access from a requesting clinician to a patient's records.
package grant

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Decisions a subject may take on a pending session. Both are terminal;
// "expired" is derived from the clock, never stored.
const (
	DecisionAccepted = string(StatusAccepted)
	DecisionDeclined = string(StatusDeclined)
)

var (
	ErrNotFound             = errors.New("consent session not found")
	ErrForbidden            = errors.New("caller is not a party to this session")
	ErrSubjectNotFound      = errors.New("subject not found")
	ErrDuplicateActiveGrant = errors.New("an active session already exists for this requester and subject")
	ErrAlreadyResolved      = errors.New("session is already resolved")
	ErrExpired              = errors.New("session has expired")
	ErrInvalidDecision      = errors.New("decision must be accepted or declined")
)

// AnonymousLabel is shown to the subject when the requester carries no
// stable identity.
const AnonymousLabel = "Anonymous requester"

// ConsentSession maps to the consent_session table. RequesterID is nil for
// anonymous requesters, which are exempt from the one-active-session
// uniqueness rule (there is no stable identity to key on).
type ConsentSession struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	RequesterID  *uuid.UUID `db:"requester_id" json:"requester_id,omitempty"`
	SubjectID    uuid.UUID  `db:"subject_id" json:"subject_id"`
	Status       Status     `db:"status" json:"status"`
	RequestLabel string     `db:"request_label" json:"request_label"`
	ExpiresAt    time.Time  `db:"expires_at" json:"expires_at"`
	RespondedAt  *time.Time `db:"responded_at" json:"responded_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the session's window has lapsed. Readers treat
// an expired session as dead regardless of its stored status.
func (s *ConsentSession) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// TimeRemaining returns the time left in the session's window, or zero once
// lapsed.
func (s *ConsentSession) TimeRemaining(now time.Time) time.Duration {
	if s.IsExpired(now) {
		return 0
	}
	return s.ExpiresAt.Sub(now)
}

// View is the session representation returned by status endpoints, with the
// derived expiry fields computed against a single clock reading.
type View struct {
	ConsentSession
	IsExpired            bool  `json:"is_expired"`
	TimeRemainingSeconds int64 `json:"time_remaining_seconds"`
}

func (s *ConsentSession) View(now time.Time) View {
	return View{
		ConsentSession:       *s,
		IsExpired:            s.IsExpired(now),
		TimeRemainingSeconds: int64(s.TimeRemaining(now).Seconds()),
	}
}
