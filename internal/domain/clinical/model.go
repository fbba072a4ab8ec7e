package clinical

import (
	"time"

	"github.com/sgpd/sgpd/internal/domain/scheduling"
	"github.com/sgpd/sgpd/pkg/jsontime"
)

type MedicalHistory struct {
	ID             int64     `json:"id"`
	PatientID      int64     `json:"patientId"`
	DoctorID       int64     `json:"doctorId"`
	AppointmentID  *int64    `json:"appointmentId,omitempty"`
	Reason         string    `json:"reason"`
	CurrentIllness *string   `json:"currentIllness,omitempty"`
	Background     *string   `json:"background,omitempty"`
	PhysicalExam   *string   `json:"physicalExam,omitempty"`
	Diagnosis      string    `json:"diagnosis"`
	Treatment      *string   `json:"treatment,omitempty"`
	Notes          *string   `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
}

type DoctorRef struct {
	ID        int64  `json:"id"`
	FullName  string `json:"fullName"`
	Specialty string `json:"specialty"`
}

type AppointmentRef struct {
	ID     int64     `json:"id"`
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	Type   string    `json:"type"`
}

// HistoryEntry is a medical history with its doctor, appointment and the
// treatments prescribed in it.
type HistoryEntry struct {
	MedicalHistory
	Doctor      DoctorRef       `json:"doctor"`
	Appointment *AppointmentRef `json:"appointment,omitempty"`
	Treatments  []*Treatment    `json:"treatments"`
}

type TreatmentStatus string

const (
	TreatmentActive    TreatmentStatus = "active"
	TreatmentCompleted TreatmentStatus = "completed"
	TreatmentSuspended TreatmentStatus = "suspended"
)

func (s TreatmentStatus) Valid() bool {
	switch s {
	case TreatmentActive, TreatmentCompleted, TreatmentSuspended:
		return true
	}
	return false
}

type Treatment struct {
	ID               int64           `json:"id"`
	PatientID        int64           `json:"patientId"`
	MedicalHistoryID *int64          `json:"medicalHistoryId,omitempty"`
	PrescribedBy     int64           `json:"prescribedBy"`
	MedicationName   string          `json:"medicationName"`
	Dosage           string          `json:"dosage"`
	Frequency        string          `json:"frequency"`
	DurationDays     *int            `json:"durationDays,omitempty"`
	StartDate        time.Time       `json:"startDate"`
	EndDate          *time.Time      `json:"endDate,omitempty"`
	Status           TreatmentStatus `json:"status"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// -- Inputs --

type Prescription struct {
	MedicationName string         `json:"medicationName" validate:"notblank,max=255"`
	Dosage         string         `json:"dosage" validate:"notblank,max=128"`
	Frequency      string         `json:"frequency" validate:"notblank,max=128"`
	DurationDays   *int           `json:"durationDays" validate:"omitempty,gt=0"`
	StartDate      *jsontime.Time `json:"startDate"`
}

// ConsultationInput is the body of POST /medical-history. Records tied to an
// appointment take patient and doctor from it; freestanding records name the
// patient.
type ConsultationInput struct {
	AppointmentID  *int64         `json:"appointmentId" validate:"omitempty,gt=0"`
	PatientID      int64          `json:"patientId" validate:"omitempty,gt=0"`
	DoctorID       int64          `json:"doctorId" validate:"omitempty,gt=0"`
	Reason         string         `json:"reason" validate:"notblank"`
	CurrentIllness *string        `json:"currentIllness"`
	Background     *string        `json:"background"`
	PhysicalExam   *string        `json:"physicalExam"`
	Diagnosis      string         `json:"diagnosis" validate:"notblank"`
	Treatment      *string        `json:"treatment"`
	Notes          *string        `json:"notes"`
	Prescriptions  []Prescription `json:"prescriptions" validate:"omitempty,dive"`
}

type Consultation struct {
	History     *MedicalHistory         `json:"history"`
	Treatments  []*Treatment            `json:"treatments"`
	Appointment *scheduling.Appointment `json:"appointment,omitempty"`
}

type TreatmentUpdateInput struct {
	Status TreatmentStatus `json:"status" validate:"required,oneof=completed suspended"`
}
