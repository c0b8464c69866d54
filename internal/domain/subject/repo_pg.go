package subject

import (
	"context"
	"errors"

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

const subjectColumns = `id, role, name, email, phone, push_token, created_at`

func (r *repoPG) Create(ctx context.Context, s *Subject) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO subject (id, role, name, email, phone, push_token)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.Role, s.Name, s.Email, s.Phone, s.PushToken,
	)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Subject, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+subjectColumns+` FROM subject WHERE id = $1`, id))
}

func (r *repoPG) GetByContact(ctx context.Context, contact string) (*Subject, error) {
	return r.scan(r.conn(ctx).QueryRow(ctx,
		`SELECT `+subjectColumns+` FROM subject WHERE email = $1 OR phone = $1`, contact))
}

func (r *repoPG) UpdatePushToken(ctx context.Context, id uuid.UUID, token *string) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE subject SET push_token = $2 WHERE id = $1`, id, token)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repoPG) scan(row pgx.Row) (*Subject, error) {
	var s Subject
	err := row.Scan(&s.ID, &s.Role, &s.Name, &s.Email, &s.Phone, &s.PushToken, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}
