package clinical

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgpd/sgpd/internal/domain/scheduling"
	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/notification"
)

type Directory interface {
	PatientIDForUser(ctx context.Context, userID int64) (int64, error)
	UserIDForPatient(ctx context.Context, patientID int64) (int64, error)
	DoctorIDForUser(ctx context.Context, userID int64) (int64, error)
	DoctorExists(ctx context.Context, doctorID int64) error
}

// Appointments is the slice of the scheduling service a consultation needs.
type Appointments interface {
	GetAppointment(ctx context.Context, actor auth.Principal, id int64) (*scheduling.Appointment, error)
	CompleteForConsultation(ctx context.Context, actor auth.Principal, id int64) (*scheduling.Appointment, error)
}

type Notifier interface {
	Notify(ctx context.Context, n notification.Notice) error
}

type Service struct {
	histories    HistoryRepository
	treatments   TreatmentRepository
	appointments Appointments
	directory    Directory
	notifier     Notifier
	tx           db.Transactor
	logger       zerolog.Logger
	now          func() time.Time
}

func NewService(histories HistoryRepository, treatments TreatmentRepository, appointments Appointments,
	directory Directory, notifier Notifier, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		histories:    histories,
		treatments:   treatments,
		appointments: appointments,
		directory:    directory,
		notifier:     notifier,
		tx:           tx,
		logger:       logger,
		now:          time.Now,
	}
}

func trimmed(s *string) *string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// consultable lists the appointment statuses a consultation may be recorded
// against.
var consultable = map[scheduling.Status]bool{
	scheduling.StatusScheduled:  true,
	scheduling.StatusInProgress: true,
	scheduling.StatusCompleted:  true,
}

// resolveDoctor picks the prescribing doctor: doctors record as themselves,
// admins name one or inherit the appointment's.
func (s *Service) resolveDoctor(ctx context.Context, actor auth.Principal, requested int64, appt *scheduling.Appointment) (int64, error) {
	if actor.IsDoctor() {
		own, err := s.directory.DoctorIDForUser(ctx, actor.UserID)
		if err != nil {
			return 0, err
		}
		if requested != 0 && requested != own {
			return 0, apperr.Forbidden("doctors can only record their own consultations")
		}
		return own, nil
	}
	if requested == 0 && appt != nil {
		return appt.DoctorID, nil
	}
	if requested <= 0 {
		return 0, apperr.Validation("doctorId is required")
	}
	if err := s.directory.DoctorExists(ctx, requested); err != nil {
		return 0, err
	}
	return requested, nil
}

func (s *Service) buildTreatments(in []Prescription, patientID, doctorID int64) ([]*Treatment, error) {
	today := dateOnly(s.now())
	out := make([]*Treatment, 0, len(in))
	for i, p := range in {
		name, dosage, freq := strings.TrimSpace(p.MedicationName), strings.TrimSpace(p.Dosage), strings.TrimSpace(p.Frequency)
		if name == "" || dosage == "" || freq == "" {
			return nil, apperr.Validation("prescriptions[%d]: medicationName, dosage and frequency are required", i)
		}
		if p.DurationDays != nil && *p.DurationDays <= 0 {
			return nil, apperr.Validation("prescriptions[%d]: durationDays must be greater than 0", i)
		}
		start := today
		if d := p.StartDate.Ptr(); d != nil {
			start = dateOnly(*d)
		}
		t := &Treatment{
			PatientID:      patientID,
			PrescribedBy:   doctorID,
			MedicationName: name,
			Dosage:         dosage,
			Frequency:      freq,
			DurationDays:   p.DurationDays,
			StartDate:      start,
			Status:         TreatmentActive,
		}
		if p.DurationDays != nil {
			end := start.AddDate(0, 0, *p.DurationDays)
			t.EndDate = &end
		}
		out = append(out, t)
	}
	return out, nil
}

// RecordConsultation stores the outcome of a consultation. When it is tied to
// an appointment, the appointment is finalized in the same transaction and a
// second record for it is a ConflictError. Each prescription becomes an
// active treatment.
func (s *Service) RecordConsultation(ctx context.Context, actor auth.Principal, in ConsultationInput) (*Consultation, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only doctors and admins can record consultations")
	}
	reason, diagnosis := strings.TrimSpace(in.Reason), strings.TrimSpace(in.Diagnosis)
	if reason == "" || diagnosis == "" {
		return nil, apperr.Validation("reason and diagnosis are required")
	}

	var appt *scheduling.Appointment
	patientID := in.PatientID
	if in.AppointmentID != nil {
		var err error
		if appt, err = s.appointments.GetAppointment(ctx, actor, *in.AppointmentID); err != nil {
			return nil, err
		}
		if patientID != 0 && patientID != appt.PatientID {
			return nil, apperr.Validation("patientId does not match the appointment")
		}
		patientID = appt.PatientID
		if !consultable[appt.Status] {
			return nil, apperr.Conflict("cannot record a consultation for a %s appointment", appt.Status)
		}
		exists, err := s.histories.ExistsForAppointment(ctx, appt.ID)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, apperr.Conflict("appointment already has a medical history")
		}
	} else if patientID <= 0 {
		return nil, apperr.Validation("patientId is required for records without an appointment")
	}

	patientUserID, err := s.directory.UserIDForPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	doctorID, err := s.resolveDoctor(ctx, actor, in.DoctorID, appt)
	if err != nil {
		return nil, err
	}
	treatments, err := s.buildTreatments(in.Prescriptions, patientID, doctorID)
	if err != nil {
		return nil, err
	}

	h := &MedicalHistory{
		PatientID:      patientID,
		DoctorID:       doctorID,
		AppointmentID:  in.AppointmentID,
		Reason:         reason,
		CurrentIllness: trimmed(in.CurrentIllness),
		Background:     trimmed(in.Background),
		PhysicalExam:   trimmed(in.PhysicalExam),
		Diagnosis:      diagnosis,
		Treatment:      trimmed(in.Treatment),
		Notes:          trimmed(in.Notes),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if appt != nil {
			updated, err := s.appointments.CompleteForConsultation(ctx, actor, appt.ID)
			if err != nil {
				return err
			}
			appt = updated
		}
		if err := s.histories.Create(ctx, h); err != nil {
			return err
		}
		for _, t := range treatments {
			t.MedicalHistoryID = &h.ID
			if err := s.treatments.Create(ctx, t); err != nil {
				return err
			}
		}
		msg := "Se registró su consulta. Diagnóstico: " + diagnosis
		if len(treatments) > 0 {
			msg += fmt.Sprintf(". Tratamientos indicados: %d", len(treatments))
		}
		return s.notifier.Notify(ctx, notification.ToUser(patientUserID,
			"Consulta registrada", msg, notification.TypeConsultation))
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().Int64("medical_history_id", h.ID).Int64("patient_id", patientID).
		Int("treatments", len(treatments)).Msg("consultation recorded")
	return &Consultation{History: h, Treatments: treatments, Appointment: appt}, nil
}

// ownPatient resolves which patient a read is about. Patients may only read
// their own records; staff must name the patient.
func (s *Service) ownPatient(ctx context.Context, actor auth.Principal, patientID int64) (int64, error) {
	if actor.IsPatient() {
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return 0, err
		}
		if patientID != 0 && patientID != own {
			return 0, apperr.Forbidden("records belong to another patient")
		}
		return own, nil
	}
	if patientID <= 0 {
		return 0, apperr.Validation("patientId is required")
	}
	return patientID, nil
}

// HistoryForPatient returns the patient's medical histories newest first,
// each with its doctor, appointment and treatments.
func (s *Service) HistoryForPatient(ctx context.Context, actor auth.Principal, patientID int64) ([]*HistoryEntry, error) {
	patientID, err := s.ownPatient(ctx, actor, patientID)
	if err != nil {
		return nil, err
	}
	entries, err := s.histories.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return []*HistoryEntry{}, nil
	}

	ids := make([]int64, len(entries))
	byID := make(map[int64]*HistoryEntry, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
		byID[e.ID] = e
		if e.Treatments == nil {
			e.Treatments = []*Treatment{}
		}
	}
	treatments, err := s.treatments.ListByHistories(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, t := range treatments {
		if t.MedicalHistoryID == nil {
			continue
		}
		if e, ok := byID[*t.MedicalHistoryID]; ok {
			e.Treatments = append(e.Treatments, t)
		}
	}
	return entries, nil
}

func (s *Service) ListTreatments(ctx context.Context, actor auth.Principal, f TreatmentFilter, limit, offset int) ([]*Treatment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status filter %q", f.Status)
	}
	patientID, err := s.ownPatient(ctx, actor, f.PatientID)
	if err != nil {
		return nil, 0, err
	}
	f.PatientID = patientID
	return s.treatments.List(ctx, f, limit, offset)
}

// UpdateTreatmentStatus closes an active treatment as completed or suspended.
func (s *Service) UpdateTreatmentStatus(ctx context.Context, actor auth.Principal, id int64, to TreatmentStatus) (*Treatment, error) {
	if !actor.IsStaff() {
		return nil, apperr.Forbidden("only doctors and admins can update treatments")
	}
	if to != TreatmentCompleted && to != TreatmentSuspended {
		return nil, apperr.Validation("status must be one of [completed suspended]")
	}
	t, err := s.treatments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != TreatmentActive {
		return nil, &apperr.InvalidTransitionError{Entity: "treatment", From: string(t.Status), To: string(to)}
	}
	ok, err := s.treatments.UpdateStatus(ctx, id, TreatmentActive, to)
	if err != nil {
		return nil, err
	}
	if !ok {
		current, err := s.treatments.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return nil, &apperr.InvalidTransitionError{Entity: "treatment", From: string(current.Status), To: string(to)}
	}
	t.Status = to
	return t, nil
}
