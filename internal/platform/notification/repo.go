package notification

import (
	"context"
	"time"
)

type Filter struct {
	UserID           int64
	IncludeBroadcast bool
	UnreadOnly       bool
}

type Repository interface {
	Create(ctx context.Context, n *Notification) error
	GetByID(ctx context.Context, id int64) (*Notification, error)
	List(ctx context.Context, f Filter, limit, offset int) ([]*Notification, int, error)
	MarkRead(ctx context.Context, id int64, at time.Time) error
}
