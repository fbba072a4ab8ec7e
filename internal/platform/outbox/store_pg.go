package outbox

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgpd/sgpd/internal/platform/db"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, s.pool)
}

func (s *PGStore) Append(ctx context.Context, e Event) error {
	_, err := s.conn(ctx).Exec(ctx, `
		INSERT INTO outbox_events (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, []byte(e.Payload), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("append outbox event: %w", err)
	}
	return nil
}

// claimTTL bounds how long a fetched event stays invisible to other relays.
// A relay that dies mid-batch releases its claim once the lease expires.
const claimTTL = 5 * time.Minute

// FetchPending claims up to limit unpublished events. Rows locked or leased
// by another relay are skipped, so concurrent relays never publish the same
// event twice.
func (s *PGStore) FetchPending(ctx context.Context, limit, maxRetries int) ([]Event, error) {
	rows, err := s.conn(ctx).Query(ctx, `
		UPDATE outbox_events SET locked_until = NOW() + $3 * INTERVAL '1 second'
		WHERE id IN (
			SELECT id FROM outbox_events
			WHERE published_at IS NULL AND retry_count < $1
			  AND (locked_until IS NULL OR locked_until < NOW())
			ORDER BY created_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING id, aggregate_type, aggregate_id, event_type, payload,
		          created_at, published_at, retry_count, last_error`,
		maxRetries, limit, int(claimTTL/time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	defer rows.Close()

	events := make([]Event, 0, limit)
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &payload,
			&e.CreatedAt, &e.PublishedAt, &e.RetryCount, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan outbox event: %w", err)
		}
		e.Payload = payload
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("fetch pending outbox events: %w", err)
	}
	// RETURNING does not preserve the subquery order.
	sort.Slice(events, func(i, j int) bool { return events[i].CreatedAt.Before(events[j].CreatedAt) })
	return events, nil
}

func (s *PGStore) MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.conn(ctx).Exec(ctx,
		`UPDATE outbox_events SET published_at = $1, last_error = NULL, locked_until = NULL WHERE id = $2`, at, id)
	return err
}

func (s *PGStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	_, err := s.conn(ctx).Exec(ctx,
		`UPDATE outbox_events SET retry_count = retry_count + 1, last_error = $1, locked_until = NULL WHERE id = $2`, reason, id)
	return err
}

func (s *PGStore) PurgePublished(ctx context.Context, olderThan time.Time) (int64, error) {
	tag, err := s.conn(ctx).Exec(ctx,
		`DELETE FROM outbox_events WHERE published_at IS NOT NULL AND published_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("purge outbox events: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PGStore) PendingCount(ctx context.Context) (int, error) {
	var n int
	err := s.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM outbox_events WHERE published_at IS NULL`).Scan(&n)
	return n, err
}
