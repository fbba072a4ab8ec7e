package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/db"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const notifCols = `id, user_id, title, message, type, urgent, read_at, created_at`

func scanNotification(row pgx.Row) (*Notification, error) {
	var n Notification
	if err := row.Scan(&n.ID, &n.UserID, &n.Title, &n.Message, &n.Type, &n.Urgent, &n.ReadAt, &n.CreatedAt); err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *repoPG) Create(ctx context.Context, n *Notification) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO notifications (user_id, title, message, type, urgent)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		n.UserID, n.Title, n.Message, n.Type, n.Urgent).Scan(&n.ID, &n.CreatedAt)
	return apperr.FromDB(err, "notification")
}

func (r *repoPG) GetByID(ctx context.Context, id int64) (*Notification, error) {
	n, err := scanNotification(r.conn(ctx).QueryRow(ctx,
		`SELECT `+notifCols+` FROM notifications WHERE id = $1`, id))
	return n, apperr.FromDB(err, "notification")
}

func (r *repoPG) List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, int, error) {
	where := `(user_id = $1`
	if f.IncludeBroadcast {
		where += ` OR user_id IS NULL`
	}
	where += `)`
	if f.UnreadOnly {
		where += ` AND read_at IS NULL`
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM notifications WHERE `+where, f.UserID).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "notification")
	}

	rows, err := r.conn(ctx).Query(ctx, fmt.Sprintf(
		`SELECT %s FROM notifications WHERE %s ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3`, notifCols, where),
		f.UserID, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "notification")
	}
	defer rows.Close()

	items := make([]*Notification, 0, limit)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, 0, apperr.FromDB(err, "notification")
		}
		items = append(items, n)
	}
	return items, total, apperr.FromDB(rows.Err(), "notification")
}

func (r *repoPG) MarkRead(ctx context.Context, id int64, at time.Time) error {
	tag, err := r.conn(ctx).Exec(ctx,
		`UPDATE notifications SET read_at = COALESCE(read_at, $2) WHERE id = $1`, id, at)
	if err != nil {
		return apperr.FromDB(err, "notification")
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("notification not found")
	}
	return nil
}
