package notification

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/outbox"
)

type Service struct {
	repo   Repository
	events outbox.Store
	tx     db.Transactor
	now    func() time.Time
}

func NewService(repo Repository, events outbox.Store, tx db.Transactor) *Service {
	return &Service{repo: repo, events: events, tx: tx, now: time.Now}
}

// Notify stores the notification and its outbox event atomically, joining the
// caller's transaction when there is one.
func (s *Service) Notify(ctx context.Context, in Notice) error {
	if strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Message) == "" {
		return apperr.Validation("notification title and message are required")
	}
	if in.Type == "" {
		in.Type = TypeInfo
	}
	if !in.Type.Valid() {
		return apperr.Validation("invalid notification type %q", in.Type)
	}

	return s.tx.WithinTx(ctx, func(ctx context.Context) error {
		n := &Notification{UserID: in.UserID, Title: in.Title, Message: in.Message, Type: in.Type, Urgent: in.Urgent}
		if err := s.repo.Create(ctx, n); err != nil {
			return err
		}
		evt, err := outbox.NewEvent("notification", strconv.FormatInt(n.ID, 10), EventCreated, CreatedEvent{
			NotificationID: n.ID,
			UserID:         n.UserID,
			Broadcast:      n.UserID == nil,
			Title:          n.Title,
			Message:        n.Message,
			Type:           n.Type,
			Urgent:         n.Urgent,
			CreatedAt:      n.CreatedAt,
		})
		if err != nil {
			return err
		}
		if err := s.events.Append(ctx, evt); err != nil {
			return apperr.Upstream("record notification event", err)
		}
		return nil
	})
}

// List returns the principal's notifications; admins also see broadcasts.
func (s *Service) List(ctx context.Context, p auth.Principal, unreadOnly bool, limit, offset int) ([]*Notification, int, error) {
	return s.repo.List(ctx, Filter{UserID: p.UserID, IncludeBroadcast: p.IsAdmin(), UnreadOnly: unreadOnly}, limit, offset)
}

func (s *Service) MarkRead(ctx context.Context, p auth.Principal, id int64) (*Notification, error) {
	n, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !visibleTo(n, p) {
		return nil, apperr.NotFound("notification not found")
	}
	if n.ReadAt != nil {
		return n, nil
	}
	at := s.now().UTC()
	if err := s.repo.MarkRead(ctx, id, at); err != nil {
		return nil, err
	}
	n.ReadAt = &at
	return n, nil
}

func visibleTo(n *Notification, p auth.Principal) bool {
	if n.UserID == nil {
		return p.IsAdmin()
	}
	return *n.UserID == p.UserID
}
