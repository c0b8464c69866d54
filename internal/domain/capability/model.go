// Package capability implements bearer tokens a patient hands out for
// record lookup, typically rendered as a QR code. A token resolves to the
// patient's summary without an authenticated caller; possession is the
// credential, so tokens are short-lived and individually revocable.
package capability

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("capability token not found")
	ErrInvalidToken = errors.New("capability token is not valid")
	ErrRevokedToken = errors.New("capability token has been revoked")
	ErrExpiredToken = errors.New("capability token has expired")
)

// Token maps to the capability_token table. The signed JWT itself is never
// stored; the row carries the revocation and expiry state the signature
// alone cannot.
type Token struct {
	ID        uuid.UUID `db:"id" json:"id"`
	SubjectID uuid.UUID `db:"subject_id" json:"subject_id"`
	Active    bool      `db:"active" json:"active"`
	ExpiresAt time.Time `db:"expires_at" json:"expires_at"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// IsExpired reports whether the token's validity window has lapsed.
func (t *Token) IsExpired(now time.Time) bool {
	return !t.ExpiresAt.After(now)
}

// Issued is returned on issue and rotate: the signed compact JWT, the stored
// row it references, and the shareable path a holder redeems it at. ShareURL
// is what the client renders as a QR code or link.
type Issued struct {
	Token     string    `json:"token"`
	ID        uuid.UUID `json:"id"`
	ShareURL  string    `json:"share_url"`
	ExpiresAt time.Time `json:"expires_at"`
}
