package capability

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

func (r *repoPG) Create(ctx context.Context, t *Token) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO capability_token (id, subject_id, active, expires_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID, t.SubjectID, t.Active, t.ExpiresAt,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Token, error) {
	var t Token
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, subject_id, active, expires_at, created_at
		FROM capability_token WHERE id = $1`, id,
	).Scan(&t.ID, &t.SubjectID, &t.Active, &t.ExpiresAt, &t.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *repoPG) DeactivateForSubject(ctx context.Context, subjectID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE capability_token SET active = FALSE WHERE subject_id = $1 AND active`, subjectID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (r *repoPG) Deactivate(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE capability_token SET active = FALSE WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`DELETE FROM capability_token WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
