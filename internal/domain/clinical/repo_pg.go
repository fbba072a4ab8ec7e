package clinical

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/db"
)

// =========== Medical History Repository ===========

type historyRepoPG struct{ pool *pgxpool.Pool }

func NewHistoryRepoPG(pool *pgxpool.Pool) HistoryRepository { return &historyRepoPG{pool: pool} }

func (r *historyRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

func (r *historyRepoPG) Create(ctx context.Context, h *MedicalHistory) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO medical_histories (patient_id, doctor_id, appointment_id, reason, current_illness,
			background, physical_exam, diagnosis, treatment, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at`,
		h.PatientID, h.DoctorID, h.AppointmentID, h.Reason, h.CurrentIllness,
		h.Background, h.PhysicalExam, h.Diagnosis, h.Treatment, h.Notes,
	).Scan(&h.ID, &h.CreatedAt)
	if apperr.IsUniqueViolation(err, "medical_histories_appointment_id_key") {
		return apperr.Conflict("appointment already has a medical history")
	}
	return apperr.FromDB(err, "medical history")
}

func (r *historyRepoPG) ExistsForAppointment(ctx context.Context, appointmentID int64) (bool, error) {
	var exists bool
	err := r.conn(ctx).QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM medical_histories WHERE appointment_id = $1)`, appointmentID).Scan(&exists)
	return exists, apperr.FromDB(err, "medical history")
}

func (r *historyRepoPG) ListByPatient(ctx context.Context, patientID int64) ([]*HistoryEntry, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT h.id, h.patient_id, h.doctor_id, h.appointment_id, h.reason, h.current_illness,
			h.background, h.physical_exam, h.diagnosis, h.treatment, h.notes, h.created_at,
			u.full_name, d.specialty, a.date, a.status, a.type
		FROM medical_histories h
		JOIN doctors d ON d.id = h.doctor_id
		JOIN users u ON u.id = d.user_id
		LEFT JOIN appointments a ON a.id = h.appointment_id
		WHERE h.patient_id = $1 AND h.deleted_at IS NULL
		ORDER BY h.created_at DESC, h.id DESC`, patientID)
	if err != nil {
		return nil, apperr.FromDB(err, "medical history")
	}
	defer rows.Close()

	items := make([]*HistoryEntry, 0)
	for rows.Next() {
		var (
			e          HistoryEntry
			apptDate   *time.Time
			apptStatus *string
			apptType   *string
		)
		if err := rows.Scan(&e.ID, &e.PatientID, &e.DoctorID, &e.AppointmentID, &e.Reason, &e.CurrentIllness,
			&e.Background, &e.PhysicalExam, &e.Diagnosis, &e.Treatment, &e.Notes, &e.CreatedAt,
			&e.Doctor.FullName, &e.Doctor.Specialty, &apptDate, &apptStatus, &apptType); err != nil {
			return nil, apperr.FromDB(err, "medical history")
		}
		e.Doctor.ID = e.DoctorID
		if e.AppointmentID != nil && apptDate != nil {
			e.Appointment = &AppointmentRef{ID: *e.AppointmentID, Date: *apptDate}
			if apptStatus != nil {
				e.Appointment.Status = *apptStatus
			}
			if apptType != nil {
				e.Appointment.Type = *apptType
			}
		}
		e.Treatments = []*Treatment{}
		items = append(items, &e)
	}
	return items, apperr.FromDB(rows.Err(), "medical history")
}

// =========== Patient Treatment Repository ===========

type treatmentRepoPG struct{ pool *pgxpool.Pool }

func NewTreatmentRepoPG(pool *pgxpool.Pool) TreatmentRepository { return &treatmentRepoPG{pool: pool} }

func (r *treatmentRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const treatmentCols = `id, patient_id, medical_history_id, prescribed_by, medication_name, dosage,
	frequency, duration_days, start_date, end_date, status, created_at, updated_at`

func scanTreatment(row pgx.Row) (*Treatment, error) {
	var t Treatment
	err := row.Scan(&t.ID, &t.PatientID, &t.MedicalHistoryID, &t.PrescribedBy, &t.MedicationName, &t.Dosage,
		&t.Frequency, &t.DurationDays, &t.StartDate, &t.EndDate, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func collectTreatments(rows pgx.Rows) ([]*Treatment, error) {
	defer rows.Close()
	items := make([]*Treatment, 0)
	for rows.Next() {
		t, err := scanTreatment(rows)
		if err != nil {
			return nil, apperr.FromDB(err, "treatment")
		}
		items = append(items, t)
	}
	return items, apperr.FromDB(rows.Err(), "treatment")
}

func (r *treatmentRepoPG) Create(ctx context.Context, t *Treatment) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patient_treatments (patient_id, medical_history_id, prescribed_by, medication_name,
			dosage, frequency, duration_days, start_date, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id, created_at, updated_at`,
		t.PatientID, t.MedicalHistoryID, t.PrescribedBy, t.MedicationName,
		t.Dosage, t.Frequency, t.DurationDays, t.StartDate, t.EndDate, t.Status,
	).Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	return apperr.FromDB(err, "treatment")
}

func (r *treatmentRepoPG) GetByID(ctx context.Context, id int64) (*Treatment, error) {
	t, err := scanTreatment(r.conn(ctx).QueryRow(ctx,
		`SELECT `+treatmentCols+` FROM patient_treatments WHERE id = $1`, id))
	return t, apperr.FromDB(err, "treatment")
}

func (r *treatmentRepoPG) List(ctx context.Context, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error) {
	where := `patient_id = $1`
	args := []interface{}{f.PatientID}
	if f.Status != "" {
		where += ` AND status = $2`
		args = append(args, f.Status)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM patient_treatments WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "treatment")
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		fmt.Sprintf(`SELECT %s FROM patient_treatments WHERE %s ORDER BY start_date DESC, id DESC LIMIT $%d OFFSET $%d`,
			treatmentCols, where, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "treatment")
	}
	items, err := collectTreatments(rows)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

func (r *treatmentRepoPG) ListByHistories(ctx context.Context, historyIDs []int64) ([]*Treatment, error) {
	if len(historyIDs) == 0 {
		return nil, nil
	}
	rows, err := r.conn(ctx).Query(ctx,
		`SELECT `+treatmentCols+` FROM patient_treatments WHERE medical_history_id = ANY($1) ORDER BY id`, historyIDs)
	if err != nil {
		return nil, apperr.FromDB(err, "treatment")
	}
	return collectTreatments(rows)
}

func (r *treatmentRepoPG) UpdateStatus(ctx context.Context, id int64, from, to TreatmentStatus) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE patient_treatments SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return false, apperr.FromDB(err, "treatment")
	}
	return tag.RowsAffected() == 1, nil
}
