// Package notification implements the notification ledger and its fanout.
// Every event is recorded first; live delivery over websocket and push is
// best effort on top of the record, never instead of it.
package notification

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound  = errors.New("notification not found")
	ErrForbidden = errors.New("notification belongs to another recipient")
)

// Kinds of ledger entries.
const (
	KindAccessRequest  = "access_request"
	KindAccessResponse = "access_response"
	KindNewDocument    = "new_document"
	KindReminder       = "reminder"
)

// Record maps to the notification_record table. SenderID is nil for
// system-originated and anonymous-sender events.
type Record struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	RecipientID   uuid.UUID       `db:"recipient_id" json:"recipient_id"`
	RecipientRole string          `db:"recipient_role" json:"recipient_role"`
	SenderID      *uuid.UUID      `db:"sender_id" json:"sender_id,omitempty"`
	SenderRole    string          `db:"sender_role" json:"sender_role,omitempty"`
	Kind          string          `db:"kind" json:"kind"`
	Payload       json.RawMessage `db:"payload" json:"payload,omitempty"`
	Read          bool            `db:"read" json:"read"`
	ReadAt        *time.Time      `db:"read_at" json:"read_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}
