package subject

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no subject matches the lookup.
var ErrNotFound = errors.New("subject not found")

// Subject is a directory entry for a patient or clinician. The core only
// needs identity, contact addresses, and a push-capable device address;
// profile management proper lives outside this service.
type Subject struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Role      string    `db:"role" json:"role"`
	Name      string    `db:"name" json:"name"`
	Email     *string   `db:"email" json:"email,omitempty"`
	Phone     *string   `db:"phone" json:"phone,omitempty"`
	PushToken *string   `db:"push_token" json:"-"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Summary is the read-only view exposed to grant holders and capability
// token holders.
type Summary struct {
	ID   uuid.UUID `json:"id"`
	Name string    `json:"name"`
	Role string    `json:"role"`
}

func (s *Subject) Summary() Summary {
	return Summary{ID: s.ID, Name: s.Name, Role: s.Role}
}
