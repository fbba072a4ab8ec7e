package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/db"
)

// whereBuilder accumulates AND-ed conditions with numbered placeholders.
type whereBuilder struct {
	conds []string
	args  []interface{}
}

func (w *whereBuilder) add(cond string, arg interface{}) {
	w.args = append(w.args, arg)
	w.conds = append(w.conds, fmt.Sprintf(cond, len(w.args)))
}

func (w *whereBuilder) String() string {
	return strings.Join(w.conds, " AND ")
}

// =========== Appointment Request Repository ===========

type requestRepoPG struct{ pool *pgxpool.Pool }

func NewRequestRepoPG(pool *pgxpool.Pool) RequestRepository { return &requestRepoPG{pool: pool} }

func (r *requestRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const requestCols = `id, patient_id, message, preferred_date, specialty, type, status,
	rejection_reason, assigned_doctor_id, appointment_id, created_at, updated_at`

func scanRequest(row pgx.Row) (*AppointmentRequest, error) {
	var q AppointmentRequest
	err := row.Scan(&q.ID, &q.PatientID, &q.Message, &q.PreferredDate, &q.Specialty, &q.Type, &q.Status,
		&q.RejectionReason, &q.AssignedDoctorID, &q.AppointmentID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (r *requestRepoPG) Create(ctx context.Context, q *AppointmentRequest) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_requests (patient_id, message, preferred_date, specialty, type, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at, updated_at`,
		q.PatientID, q.Message, q.PreferredDate, q.Specialty, q.Type, q.Status,
	).Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	return apperr.FromDB(err, "appointment request")
}

func (r *requestRepoPG) GetByID(ctx context.Context, id int64) (*AppointmentRequest, error) {
	q, err := scanRequest(r.conn(ctx).QueryRow(ctx,
		`SELECT `+requestCols+` FROM appointment_requests WHERE id = $1 AND deleted_at IS NULL`, id))
	return q, apperr.FromDB(err, "appointment request")
}

func (r *requestRepoPG) List(ctx context.Context, f RequestFilter, limit, offset int) ([]*AppointmentRequest, int, error) {
	w := &whereBuilder{conds: []string{"deleted_at IS NULL"}}
	if f.PatientID > 0 {
		w.add("patient_id = $%d", f.PatientID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointment_requests WHERE `+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "appointment request")
	}

	n := len(w.args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM appointment_requests WHERE %s ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d`,
			requestCols, w.String(), n+1, n+2),
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "appointment request")
	}
	defer rows.Close()

	items := make([]*AppointmentRequest, 0)
	for rows.Next() {
		q, err := scanRequest(rows)
		if err != nil {
			return nil, 0, apperr.FromDB(err, "appointment request")
		}
		items = append(items, q)
	}
	return items, total, apperr.FromDB(rows.Err(), "appointment request")
}

func (r *requestRepoPG) exec(ctx context.Context, sql string, args ...interface{}) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return false, apperr.FromDB(err, "appointment request")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *requestRepoPG) MarkAccepted(ctx context.Context, id, doctorID, appointmentID int64) (bool, error) {
	return r.exec(ctx, `
		UPDATE appointment_requests
		SET status = 'aceptada', assigned_doctor_id = $2, appointment_id = $3, updated_at = NOW()
		WHERE id = $1 AND status = 'pendiente' AND deleted_at IS NULL`, id, doctorID, appointmentID)
}

func (r *requestRepoPG) MarkRejected(ctx context.Context, id int64, reason string) (bool, error) {
	return r.exec(ctx, `
		UPDATE appointment_requests
		SET status = 'rechazada', rejection_reason = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pendiente' AND deleted_at IS NULL`, id, reason)
}

func (r *requestRepoPG) SoftDeletePending(ctx context.Context, id int64) (bool, error) {
	return r.exec(ctx, `
		UPDATE appointment_requests SET deleted_at = NOW(), updated_at = NOW()
		WHERE id = $1 AND status = 'pendiente' AND deleted_at IS NULL`, id)
}

// =========== Appointment Repository ===========

type appointmentRepoPG struct{ pool *pgxpool.Pool }

func NewAppointmentRepoPG(pool *pgxpool.Pool) AppointmentRepository {
	return &appointmentRepoPG{pool: pool}
}

func (r *appointmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const apptCols = `id, patient_id, doctor_id, date, status, type,
	location, address, room, meeting_link, notes, created_at, updated_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	err := row.Scan(&a.ID, &a.PatientID, &a.DoctorID, &a.Date, &a.Status, &a.Type,
		&a.Location, &a.Address, &a.Room, &a.MeetingLink, &a.Notes, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *appointmentRepoPG) Create(ctx context.Context, a *Appointment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointments (patient_id, doctor_id, date, status, type,
			location, address, room, meeting_link, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		a.PatientID, a.DoctorID, a.Date, a.Status, a.Type,
		a.Location, a.Address, a.Room, a.MeetingLink, a.Notes,
	).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
	return apperr.FromDB(err, "appointment")
}

func (r *appointmentRepoPG) GetByID(ctx context.Context, id int64) (*Appointment, error) {
	a, err := scanAppointment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+apptCols+` FROM appointments WHERE id = $1 AND deleted_at IS NULL`, id))
	return a, apperr.FromDB(err, "appointment")
}

func (r *appointmentRepoPG) List(ctx context.Context, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	w := &whereBuilder{conds: []string{"deleted_at IS NULL"}}
	if f.PatientID > 0 {
		w.add("patient_id = $%d", f.PatientID)
	}
	if f.DoctorID > 0 {
		w.add("doctor_id = $%d", f.DoctorID)
	}
	if f.Status != "" {
		w.add("status = $%d", f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM appointments WHERE `+w.String(), w.args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "appointment")
	}

	n := len(w.args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM appointments WHERE %s ORDER BY date DESC, id DESC LIMIT $%d OFFSET $%d`,
			apptCols, w.String(), n+1, n+2),
		append(w.args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "appointment")
	}
	defer rows.Close()

	items := make([]*Appointment, 0)
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, 0, apperr.FromDB(err, "appointment")
		}
		items = append(items, a)
	}
	return items, total, apperr.FromDB(rows.Err(), "appointment")
}

func (r *appointmentRepoPG) UpdateStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2 AND deleted_at IS NULL`, id, from, to)
	if err != nil {
		return false, apperr.FromDB(err, "appointment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) UpdateDate(ctx context.Context, id int64, date time.Time) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE appointments SET date = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'programada' AND deleted_at IS NULL`, id, date)
	if err != nil {
		return false, apperr.FromDB(err, "appointment")
	}
	return tag.RowsAffected() == 1, nil
}

func (r *appointmentRepoPG) AddStatusChange(ctx context.Context, c *StatusChange) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO appointment_status_history (appointment_id, from_status, to_status, old_date, new_date, actor_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`,
		c.AppointmentID, c.FromStatus, c.ToStatus, c.OldDate, c.NewDate, c.ActorUserID,
	).Scan(&c.ID, &c.CreatedAt)
	return apperr.FromDB(err, "appointment status change")
}

func (r *appointmentRepoPG) ListStatusChanges(ctx context.Context, appointmentID int64) ([]*StatusChange, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT id, appointment_id, from_status, to_status, old_date, new_date, actor_user_id, created_at
		FROM appointment_status_history WHERE appointment_id = $1 ORDER BY id`, appointmentID)
	if err != nil {
		return nil, apperr.FromDB(err, "appointment status change")
	}
	defer rows.Close()

	items := make([]*StatusChange, 0)
	for rows.Next() {
		var c StatusChange
		if err := rows.Scan(&c.ID, &c.AppointmentID, &c.FromStatus, &c.ToStatus,
			&c.OldDate, &c.NewDate, &c.ActorUserID, &c.CreatedAt); err != nil {
			return nil, apperr.FromDB(err, "appointment status change")
		}
		items = append(items, &c)
	}
	return items, apperr.FromDB(rows.Err(), "appointment status change")
}
