package clinical

import (
	"context"
)

type HistoryRepository interface {
	// Create reports a ConflictError when the appointment already has a
	// medical history.
	Create(ctx context.Context, h *MedicalHistory) error
	ExistsForAppointment(ctx context.Context, appointmentID int64) (bool, error)
	// ListByPatient returns the patient's histories newest first with doctor
	// and appointment resolved. Treatments are left empty.
	ListByPatient(ctx context.Context, patientID int64) ([]*HistoryEntry, error)
}

type TreatmentFilter struct {
	PatientID int64
	Status    TreatmentStatus
}

type TreatmentRepository interface {
	Create(ctx context.Context, t *Treatment) error
	GetByID(ctx context.Context, id int64) (*Treatment, error)
	List(ctx context.Context, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error)
	ListByHistories(ctx context.Context, historyIDs []int64) ([]*Treatment, error)
	// UpdateStatus reports whether the treatment was still in status from.
	UpdateStatus(ctx context.Context, id int64, from, to TreatmentStatus) (bool, error)
}
