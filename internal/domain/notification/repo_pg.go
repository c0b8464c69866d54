package notification

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

const recordColumns = `id, recipient_id, recipient_role, sender_id, sender_role, kind, payload, read, read_at, created_at`

func (r *repoPG) Create(ctx context.Context, rec *Record) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO notification_record (id, recipient_id, recipient_role, sender_id, sender_role, kind, payload)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.RecipientID, rec.RecipientRole, rec.SenderID, rec.SenderRole, rec.Kind, rec.Payload,
	)
	return err
}

func (r *repoPG) ListByRecipient(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]*Record, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_record WHERE recipient_id = $1`, recipientID,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+recordColumns+` FROM notification_record
		WHERE recipient_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`,
		recipientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.RecipientID, &rec.RecipientRole, &rec.SenderID,
			&rec.SenderRole, &rec.Kind, &rec.Payload, &rec.Read, &rec.ReadAt, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, &rec)
	}
	return records, total, rows.Err()
}

func (r *repoPG) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int, error) {
	var count int
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM notification_record WHERE recipient_id = $1 AND NOT read`,
		recipientID,
	).Scan(&count)
	return count, err
}

func (r *repoPG) MarkRead(ctx context.Context, id, recipientID uuid.UUID) error {
	var owner uuid.UUID
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT recipient_id FROM notification_record WHERE id = $1`, id,
	).Scan(&owner)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != recipientID {
		return ErrForbidden
	}

	// COALESCE keeps the original stamp when a record is marked twice.
	_, err = r.conn(ctx).Exec(ctx,
		`UPDATE notification_record SET read = TRUE, read_at = COALESCE(read_at, now()) WHERE id = $1`, id)
	return err
}

func (r *repoPG) MarkAllRead(ctx context.Context, recipientID uuid.UUID) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notification_record SET read = TRUE, read_at = now() WHERE recipient_id = $1 AND NOT read`,
		recipientID)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
