// Package outbox records integration events in the same transaction as the
// state change that caused them and relays them to Kafka afterwards.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID            uuid.UUID       `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	CreatedAt     time.Time       `json:"created_at"`
	PublishedAt   *time.Time      `json:"published_at,omitempty"`
	RetryCount    int             `json:"retry_count"`
	LastError     *string         `json:"last_error,omitempty"`
}

// Key is the Kafka partition key; events of one aggregate stay ordered.
func (e Event) Key() string {
	return e.AggregateType + "-" + e.AggregateID
}

func NewEvent(aggregateType, aggregateID, eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{
		ID:            uuid.New(),
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
		CreatedAt:     time.Now().UTC(),
	}, nil
}

// Store persists outbox events. Append uses the transaction carried by ctx.
type Store interface {
	Append(ctx context.Context, e Event) error
	FetchPending(ctx context.Context, limit, maxRetries int) ([]Event, error)
	MarkPublished(ctx context.Context, id uuid.UUID, at time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
	PurgePublished(ctx context.Context, olderThan time.Time) (int64, error)
	PendingCount(ctx context.Context) (int, error)
}
