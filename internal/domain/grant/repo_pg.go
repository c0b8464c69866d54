package grant

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// queryable abstracts pgxpool.Pool for transaction-scoped queries.
type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable { return r.pool }

const sessionColumns = `id, requester_id, subject_id, status, request_label, expires_at, responded_at, created_at`

// uniqueViolation is the Postgres error code raised by the partial unique
// index on active (requester_id, subject_id) pairs. The index closes the
// duplicate-request race at the store, so two concurrent creates cannot both
// succeed.
const uniqueViolation = "23505"

func (r *repoPG) Create(ctx context.Context, s *ConsentSession) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO consent_session (id, requester_id, subject_id, status, request_label, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.RequesterID, s.SubjectID, s.Status, s.RequestLabel, s.ExpiresAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrDuplicateActiveGrant
	}
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*ConsentSession, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM consent_session WHERE id = $1`, id))
}

func (r *repoPG) FindActive(ctx context.Context, requesterID, subjectID uuid.UUID, now time.Time) (*ConsentSession, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx, `
		SELECT `+sessionColumns+` FROM consent_session
		WHERE requester_id = $1 AND subject_id = $2
		  AND status IN ('pending', 'accepted') AND expires_at > $3
		LIMIT 1`,
		requesterID, subjectID, now))
}

func (r *repoPG) Resolve(ctx context.Context, id uuid.UUID, status Status, respondedAt time.Time, expiresAt *time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE consent_session
		SET status = $2, responded_at = $3, expires_at = COALESCE($4, expires_at)
		WHERE id = $1 AND status = 'pending'`,
		id, status, respondedAt, expiresAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (r *repoPG) IsGranted(ctx context.Context, requesterID, subjectID uuid.UUID, now time.Time) (bool, error) {
	var granted bool
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consent_session
			WHERE requester_id = $1 AND subject_id = $2
			  AND status = 'accepted' AND expires_at > $3
		)`,
		requesterID, subjectID, now,
	).Scan(&granted)
	return granted, err
}

func (r *repoPG) ListAcceptedByRequester(ctx context.Context, requesterID uuid.UUID, now time.Time) ([]*ConsentSession, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+sessionColumns+` FROM consent_session
		WHERE requester_id = $1 AND status = 'accepted' AND expires_at > $2
		ORDER BY expires_at`,
		requesterID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*ConsentSession
	for rows.Next() {
		s, err := r.scanRow(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

func (r *repoPG) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM consent_session WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) scan(row pgx.Row) (*ConsentSession, error) {
	var s ConsentSession
	err := row.Scan(&s.ID, &s.RequesterID, &s.SubjectID, &s.Status, &s.RequestLabel,
		&s.ExpiresAt, &s.RespondedAt, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *repoPG) scanRow(rows pgx.Rows) (*ConsentSession, error) {
	var s ConsentSession
	err := rows.Scan(&s.ID, &s.RequesterID, &s.SubjectID, &s.Status, &s.RequestLabel,
		&s.ExpiresAt, &s.RespondedAt, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}
