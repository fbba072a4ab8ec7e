package scheduling

import (
	"context"
	"time"
)

type RequestRepository interface {
	Create(ctx context.Context, r *AppointmentRequest) error
	GetByID(ctx context.Context, id int64) (*AppointmentRequest, error)
	List(ctx context.Context, f RequestFilter, limit, offset int) ([]*AppointmentRequest, int, error)
	// MarkAccepted, MarkRejected and SoftDeletePending only touch requests that
	// are still pendiente and report whether a row changed.
	MarkAccepted(ctx context.Context, id, doctorID, appointmentID int64) (bool, error)
	MarkRejected(ctx context.Context, id int64, reason string) (bool, error)
	SoftDeletePending(ctx context.Context, id int64) (bool, error)
}

type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id int64) (*Appointment, error)
	List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error)
	// UpdateStatus moves an appointment from one status to another and
	// reports whether it was still in the expected status.
	UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	// UpdateDate changes the date of a programada appointment.
	UpdateDate(ctx context.Context, id int64, date time.Time) (bool, error)
	AddStatusChange(ctx context.Context, c *StatusChange) error
	ListStatusChanges(ctx context.Context, appointmentID int64) ([]*StatusChange, error)
}
