// Package notification stores in-app notifications and emits one outbox
// event per notification for downstream delivery.
package notification

import "time"

type Type string

const (
	TypeInfo         Type = "info"
	TypeAppointment  Type = "appointment"
	TypeRequest      Type = "request"
	TypeConsultation Type = "consultation"
	TypeAccount      Type = "account"
)

func (t Type) Valid() bool {
	switch t {
	case TypeInfo, TypeAppointment, TypeRequest, TypeConsultation, TypeAccount:
		return true
	}
	return false
}

// Notification is addressed to one user, or to every admin when UserID is nil.
type Notification struct {
	ID        int64      `json:"id"`
	UserID    *int64     `json:"userId"`
	Title     string     `json:"title"`
	Message   string     `json:"message"`
	Type      Type       `json:"type"`
	Urgent    bool       `json:"urgent"`
	ReadAt    *time.Time `json:"readAt"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Notice is what callers hand to Notify.
type Notice struct {
	UserID  *int64
	Title   string
	Message string
	Type    Type
	Urgent  bool
}

// ToUser addresses a notice to a single user.
func ToUser(userID int64, title, message string, typ Type) Notice {
	return Notice{UserID: &userID, Title: title, Message: message, Type: typ}
}

// ToAdmins addresses a notice to every admin.
func ToAdmins(title, message string, typ Type) Notice {
	return Notice{Title: title, Message: message, Type: typ}
}

// CreatedEvent is the outbox payload for a stored notification.
type CreatedEvent struct {
	NotificationID int64     `json:"notificationId"`
	UserID         *int64    `json:"userId"`
	Broadcast      bool      `json:"broadcast"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	Type           Type      `json:"type"`
	Urgent         bool      `json:"urgent"`
	CreatedAt      time.Time `json:"createdAt"`
}

const EventCreated = "notification.created"
