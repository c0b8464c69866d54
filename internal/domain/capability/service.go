package capability

import (
	"context"
	"errors"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carelink/carelink/internal/domain/subject"
)

// resolvePath is the public route a shared token is redeemed at.
const resolvePath = "/api/v1/capability/resolve"

// Directory is the narrow view of the subject directory the capability
// service needs.
type Directory interface {
	Summary(ctx context.Context, id uuid.UUID) (*subject.Summary, error)
}

type Service struct {
	repo       Repository
	subjects   Directory
	signingKey []byte
	ttl        time.Duration
	logger     zerolog.Logger
	now        func() time.Time
}

// NewService builds the capability service. signingKey must differ from the
// auth signing key so a capability token can never pass as a login token.
func NewService(repo Repository, subjects Directory, signingKey []byte, ttl time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		subjects:   subjects,
		signingKey: signingKey,
		ttl:        ttl,
		logger:     logger,
		now:        time.Now,
	}
}

// Issue mints a fresh capability token for the subject, revoking any token
// still live. The jti claim carries the row id; resolution checks the row,
// so revocation takes effect immediately regardless of the signature's
// validity.
func (s *Service) Issue(ctx context.Context, subjectID uuid.UUID) (*Issued, error) {
	now := s.now()

	if n, err := s.repo.DeactivateForSubject(ctx, subjectID); err != nil {
		return nil, err
	} else if n > 0 {
		s.logger.Debug().Int("revoked", n).Stringer("subject", subjectID).
			Msg("revoked live capability tokens before issue")
	}

	t := &Token{
		ID:        uuid.New(),
		SubjectID: subjectID,
		Active:    true,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := s.repo.Create(ctx, t); err != nil {
		return nil, err
	}

	claims := jwt.RegisteredClaims{
		ID:        t.ID.String(),
		Subject:   subjectID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(t.ExpiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return nil, err
	}

	return &Issued{
		Token:     signed,
		ID:        t.ID,
		ShareURL:  resolvePath + "?token=" + url.QueryEscape(signed),
		ExpiresAt: t.ExpiresAt,
	}, nil
}

// Rotate is Issue under a name that matches its intent on the API: the old
// token dies, a new one replaces it.
func (s *Service) Rotate(ctx context.Context, subjectID uuid.UUID) (*Issued, error) {
	return s.Issue(ctx, subjectID)
}

// Invalidate revokes the subject's live tokens without minting a
// replacement.
func (s *Service) Invalidate(ctx context.Context, subjectID uuid.UUID) (int, error) {
	return s.repo.DeactivateForSubject(ctx, subjectID)
}

// Revoke deactivates one token by id. Tokens belonging to anyone other than
// the caller read as absent, so a foreign id reveals nothing.
func (s *Service) Revoke(ctx context.Context, tokenID, subjectID uuid.UUID) error {
	t, err := s.repo.GetByID(ctx, tokenID)
	if err != nil {
		return err
	}
	if t.SubjectID != subjectID {
		return ErrNotFound
	}
	return s.repo.Deactivate(ctx, t.ID)
}

// Resolve verifies a presented token and returns the subject summary it
// grants access to. The check is twofold: the signature proves the token
// was ours, and the stored row proves it is still live. A valid signature
// over a revoked row resolves to ErrRevokedToken, not success.
func (s *Service) Resolve(ctx context.Context, tokenString string) (*subject.Summary, error) {
	t, err := s.verify(ctx, tokenString)
	if err != nil {
		return nil, err
	}
	sum, err := s.subjects.Summary(ctx, t.SubjectID)
	if err != nil {
		return nil, ErrInvalidToken
	}
	return sum, nil
}

// Validate reports whether a presented token would resolve, without
// revealing anything about the subject.
func (s *Service) Validate(ctx context.Context, tokenString string) bool {
	_, err := s.verify(ctx, tokenString)
	return err == nil
}

// SweepExpired deletes tokens whose validity window has lapsed.
func (s *Service) SweepExpired(ctx context.Context) (int, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *Service) verify(ctx context.Context, tokenString string) (*Token, error) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.signingKey, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	tokenID, err := uuid.Parse(claims.ID)
	if err != nil {
		return nil, ErrInvalidToken
	}

	t, err := s.repo.GetByID(ctx, tokenID)
	if err != nil {
		// The sweeper may have deleted the row before the signature
		// expired; either way the token is dead.
		return nil, ErrRevokedToken
	}
	if !t.Active {
		return nil, ErrRevokedToken
	}
	if t.IsExpired(s.now()) {
		return nil, ErrExpiredToken
	}
	return t, nil
}
