package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/notification"
)

// Directory resolves the patient and doctor records behind user accounts.
type Directory interface {
	PatientIDForUser(ctx context.Context, userID int64) (int64, error)
	UserIDForPatient(ctx context.Context, patientID int64) (int64, error)
	DoctorIDForUser(ctx context.Context, userID int64) (int64, error)
	DoctorExists(ctx context.Context, doctorID int64) error
}

type Notifier interface {
	Notify(ctx context.Context, n notification.Notice) error
}

type Service struct {
	requests     RequestRepository
	appointments AppointmentRepository
	directory    Directory
	notifier     Notifier
	tx           db.Transactor
	logger       zerolog.Logger
}

func NewService(requests RequestRepository, appointments AppointmentRepository, directory Directory,
	notifier Notifier, tx db.Transactor, logger zerolog.Logger) *Service {
	return &Service{
		requests:     requests,
		appointments: appointments,
		directory:    directory,
		notifier:     notifier,
		tx:           tx,
		logger:       logger,
	}
}

const dateLayout = "02/01/2006 15:04"

func requireStaff(p auth.Principal) error {
	if !p.IsStaff() {
		return apperr.Forbidden("only doctors and admins can do this")
	}
	return nil
}

func (s *Service) notifyPatient(ctx context.Context, patientID int64, title, msg string, typ notification.Type) error {
	userID, err := s.directory.UserIDForPatient(ctx, patientID)
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, notification.ToUser(userID, title, msg, typ))
}

// -- Appointment Requests --

// SubmitRequest files a pending request. Patients file for themselves; staff
// must name the patient.
func (s *Service) SubmitRequest(ctx context.Context, actor auth.Principal, in SubmitRequestInput) (*AppointmentRequest, error) {
	msg := strings.TrimSpace(in.Message)
	if msg == "" {
		return nil, apperr.Validation("message is required")
	}
	typ := in.Type
	if typ == "" {
		typ = TypeInPerson
	}
	if !typ.Valid() {
		return nil, apperr.Validation("type must be one of [presencial virtual]")
	}

	patientID := in.PatientID
	if actor.IsPatient() {
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if patientID != 0 && patientID != own {
			return nil, apperr.Forbidden("patients can only file requests for themselves")
		}
		patientID = own
	} else if patientID <= 0 {
		return nil, apperr.Validation("patientId is required")
	} else if _, err := s.directory.UserIDForPatient(ctx, patientID); err != nil {
		return nil, err
	}

	req := &AppointmentRequest{
		PatientID:     patientID,
		Message:       msg,
		PreferredDate: in.PreferredDate.Ptr(),
		Specialty:     trimmed(in.Specialty),
		Type:          typ,
		Status:        RequestPending,
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.requests.Create(ctx, req); err != nil {
			return err
		}
		return s.notifier.Notify(ctx, notification.ToAdmins(
			"Nueva solicitud de cita",
			fmt.Sprintf("Solicitud #%d: %s", req.ID, msg),
			notification.TypeRequest))
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func (s *Service) ownRequest(ctx context.Context, actor auth.Principal, id int64) (*AppointmentRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsPatient() {
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if req.PatientID != own {
			return nil, apperr.Forbidden("request belongs to another patient")
		}
	}
	return req, nil
}

func (s *Service) GetRequest(ctx context.Context, actor auth.Principal, id int64) (*AppointmentRequest, error) {
	return s.ownRequest(ctx, actor, id)
}

func (s *Service) ListRequests(ctx context.Context, actor auth.Principal, f RequestFilter, limit, offset int) ([]*AppointmentRequest, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status filter %q", f.Status)
	}
	if actor.IsPatient() {
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, 0, err
		}
		f.PatientID = own
	}
	return s.requests.List(ctx, f, limit, offset)
}

// TriageRequest accepts or rejects a pending request. The state change, the
// new appointment and the patient notification commit together; a request
// that is no longer pendiente yields a ConflictError.
func (s *Service) TriageRequest(ctx context.Context, actor auth.Principal, id int64, d Decision) (*AppointmentRequest, *Appointment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, nil, err
	}
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if req.Status != RequestPending {
		return nil, nil, apperr.Conflict("request already %s", req.Status)
	}

	switch d := d.(type) {
	case AcceptDecision:
		appt, err := s.accept(ctx, actor, req, d)
		if err != nil {
			return nil, nil, err
		}
		return req, appt, nil
	case RejectDecision:
		if err := s.reject(ctx, req, d); err != nil {
			return nil, nil, err
		}
		return req, nil, nil
	default:
		return nil, nil, apperr.Validation("unknown triage decision")
	}
}

func (s *Service) accept(ctx context.Context, actor auth.Principal, req *AppointmentRequest, d AcceptDecision) (*Appointment, error) {
	if d.DoctorID <= 0 {
		return nil, apperr.Validation("doctorId is required to accept a request")
	}
	if d.Date.IsZero() {
		return nil, apperr.Validation("date is required to accept a request")
	}
	typ := d.Type
	if typ == "" {
		typ = req.Type
	}
	place, err := d.Place.normalize(typ)
	if err != nil {
		return nil, err
	}
	if err := s.directory.DoctorExists(ctx, d.DoctorID); err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID: req.PatientID,
		DoctorID:  d.DoctorID,
		Date:      d.Date,
		Status:    StatusScheduled,
		Type:      typ,
		Place:     place,
		Notes:     trimmed(d.Notes),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.createAppointment(ctx, actor, appt); err != nil {
			return err
		}
		ok, err := s.requests.MarkAccepted(ctx, req.ID, d.DoctorID, appt.ID)
		if err != nil {
			return err
		}
		if !ok {
			return s.requestConflict(ctx, req.ID)
		}
		return s.notifyPatient(ctx, req.PatientID, "Solicitud de cita aceptada",
			fmt.Sprintf("Su cita quedó programada para el %s", appt.Date.Format(dateLayout)),
			notification.TypeAppointment)
	})
	if err != nil {
		return nil, err
	}

	req.Status = RequestAccepted
	req.AssignedDoctorID = &appt.DoctorID
	req.AppointmentID = &appt.ID
	s.logger.Info().Int64("request_id", req.ID).Int64("appointment_id", appt.ID).Msg("appointment request accepted")
	return appt, nil
}

func (s *Service) reject(ctx context.Context, req *AppointmentRequest, d RejectDecision) error {
	reason := strings.TrimSpace(d.Reason)
	if reason == "" {
		return apperr.Validation("rejectionReason is required to reject a request")
	}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.requests.MarkRejected(ctx, req.ID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return s.requestConflict(ctx, req.ID)
		}
		return s.notifyPatient(ctx, req.PatientID, "Solicitud de cita rechazada",
			"Motivo: "+reason, notification.TypeRequest)
	})
	if err != nil {
		return err
	}
	req.Status = RequestRejected
	req.RejectionReason = &reason
	s.logger.Info().Int64("request_id", req.ID).Msg("appointment request rejected")
	return nil
}

// requestConflict explains why a compare-and-set on a pending request missed.
func (s *Service) requestConflict(ctx context.Context, id int64) error {
	current, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return apperr.Conflict("request already %s", current.Status)
}

// CancelRequest withdraws a pending request. Only its patient or an admin may
// do so.
func (s *Service) CancelRequest(ctx context.Context, actor auth.Principal, id int64) error {
	if actor.IsDoctor() {
		return apperr.Forbidden("only the patient or an admin can withdraw a request")
	}
	req, err := s.ownRequest(ctx, actor, id)
	if err != nil {
		return err
	}
	if req.Status != RequestPending {
		return apperr.Conflict("only pending requests can be withdrawn; request is %s", req.Status)
	}
	ok, err := s.requests.SoftDeletePending(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return s.requestConflict(ctx, id)
	}
	return nil
}

// -- Appointments --

func (s *Service) createAppointment(ctx context.Context, actor auth.Principal, a *Appointment) error {
	if err := s.appointments.Create(ctx, a); err != nil {
		return err
	}
	date := a.Date
	return s.appointments.AddStatusChange(ctx, &StatusChange{
		AppointmentID: a.ID,
		ToStatus:      a.Status,
		NewDate:       &date,
		ActorUserID:   &actor.UserID,
	})
}

// BookAppointment schedules an appointment directly. Doctors book for
// themselves; admins must name the doctor.
func (s *Service) BookAppointment(ctx context.Context, actor auth.Principal, in BookInput) (*Appointment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if in.PatientID <= 0 {
		return nil, apperr.Validation("patientId is required")
	}
	date := in.Date.Ptr()
	if date == nil {
		return nil, apperr.Validation("date is required")
	}
	if _, err := s.directory.UserIDForPatient(ctx, in.PatientID); err != nil {
		return nil, err
	}

	doctorID := in.DoctorID
	if actor.IsDoctor() {
		own, err := s.directory.DoctorIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if doctorID != 0 && doctorID != own {
			return nil, apperr.Forbidden("doctors can only book their own appointments")
		}
		doctorID = own
	} else if doctorID <= 0 {
		return nil, apperr.Validation("doctorId is required")
	} else if err := s.directory.DoctorExists(ctx, doctorID); err != nil {
		return nil, err
	}

	typ := in.Type
	if typ == "" {
		typ = TypeInPerson
	}
	place, err := in.place().normalize(typ)
	if err != nil {
		return nil, err
	}

	appt := &Appointment{
		PatientID: in.PatientID,
		DoctorID:  doctorID,
		Date:      *date,
		Status:    StatusScheduled,
		Type:      typ,
		Place:     place,
		Notes:     trimmed(in.Notes),
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.createAppointment(ctx, actor, appt); err != nil {
			return err
		}
		return s.notifyPatient(ctx, appt.PatientID, "Nueva cita programada",
			fmt.Sprintf("Tiene una cita el %s", appt.Date.Format(dateLayout)),
			notification.TypeAppointment)
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

func (s *Service) GetAppointment(ctx context.Context, actor auth.Principal, id int64) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if actor.IsPatient() {
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, err
		}
		if a.PatientID != own {
			return nil, apperr.Forbidden("appointment belongs to another patient")
		}
	}
	return a, nil
}

// ListAppointments scopes patients to their own appointments and doctors to
// theirs unless another doctor is asked for.
func (s *Service) ListAppointments(ctx context.Context, actor auth.Principal, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, 0, apperr.Validation("invalid status filter %q", f.Status)
	}
	switch {
	case actor.IsPatient():
		own, err := s.directory.PatientIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, 0, err
		}
		f.PatientID = own
	case actor.IsDoctor() && f.DoctorID == 0 && f.PatientID == 0:
		own, err := s.directory.DoctorIDForUser(ctx, actor.UserID)
		if err != nil {
			return nil, 0, err
		}
		f.DoctorID = own
	}
	return s.appointments.List(ctx, f, limit, offset)
}

func (s *Service) History(ctx context.Context, actor auth.Principal, id int64) ([]*StatusChange, error) {
	if _, err := s.GetAppointment(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.appointments.ListStatusChanges(ctx, id)
}

// casMiss explains why a compare-and-set on an appointment missed: it is gone,
// or another writer moved it first.
func (s *Service) casMiss(ctx context.Context, id int64, to Status) error {
	current, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return err
	}
	return &apperr.InvalidTransitionError{Entity: "appointment", From: string(current.Status), To: string(to)}
}

// transition moves a along one edge of the state machine and records it.
func (s *Service) transition(ctx context.Context, actor auth.Principal, a *Appointment, to Status) error {
	if err := checkTransition(a.Status, to); err != nil {
		return err
	}
	ok, err := s.appointments.UpdateStatus(ctx, a.ID, a.Status, to)
	if err != nil {
		return err
	}
	if !ok {
		return s.casMiss(ctx, a.ID, to)
	}
	from := a.Status
	if err := s.appointments.AddStatusChange(ctx, &StatusChange{
		AppointmentID: a.ID,
		FromStatus:    &from,
		ToStatus:      to,
		ActorUserID:   &actor.UserID,
	}); err != nil {
		return err
	}
	a.Status = to
	return nil
}

// UpdateStatus applies a status change. Patients may only cancel their own
// appointments; reprogramada is reached through Reschedule.
func (s *Service) UpdateStatus(ctx context.Context, actor auth.Principal, id int64, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, apperr.Validation("invalid status %q", to)
	}
	if to == StatusRescheduled {
		return nil, apperr.Validation("a new date is required to reschedule")
	}
	if to == StatusCancelled {
		return s.Cancel(ctx, actor, id)
	}
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(a.Status, to); err != nil {
		return nil, err
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.transition(ctx, actor, a, to); err != nil {
			return err
		}
		if to == StatusNoShow {
			return s.notifyPatient(ctx, a.PatientID, "Inasistencia registrada",
				fmt.Sprintf("No asistió a su cita del %s", a.Date.Format(dateLayout)),
				notification.TypeAppointment)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Reschedule moves a programada appointment to a new date. The appointment
// passes through reprogramada and is left programada; both steps are
// recorded in its history.
func (s *Service) Reschedule(ctx context.Context, actor auth.Principal, id int64, date time.Time) (*Appointment, error) {
	if err := requireStaff(actor); err != nil {
		return nil, err
	}
	if date.IsZero() {
		return nil, apperr.Validation("date is required")
	}
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if a.Status != StatusScheduled {
		return nil, &apperr.InvalidTransitionError{Entity: "appointment", From: string(a.Status), To: string(StatusRescheduled)}
	}

	oldDate := a.Date
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.appointments.UpdateDate(ctx, id, date)
		if err != nil {
			return err
		}
		if !ok {
			return s.casMiss(ctx, id, StatusRescheduled)
		}
		scheduled, rescheduled := StatusScheduled, StatusRescheduled
		if err := s.appointments.AddStatusChange(ctx, &StatusChange{
			AppointmentID: id,
			FromStatus:    &scheduled,
			ToStatus:      StatusRescheduled,
			OldDate:       &oldDate,
			NewDate:       &date,
			ActorUserID:   &actor.UserID,
		}); err != nil {
			return err
		}
		if err := s.appointments.AddStatusChange(ctx, &StatusChange{
			AppointmentID: id,
			FromStatus:    &rescheduled,
			ToStatus:      StatusScheduled,
			ActorUserID:   &actor.UserID,
		}); err != nil {
			return err
		}
		return s.notifyPatient(ctx, a.PatientID, "Cita reprogramada",
			fmt.Sprintf("Su cita del %s fue movida al %s", oldDate.Format(dateLayout), date.Format(dateLayout)),
			notification.TypeAppointment)
	})
	if err != nil {
		return nil, err
	}
	a.Date = date
	return a, nil
}

// Cancel marks an appointment cancelada. Patients may cancel their own.
func (s *Service) Cancel(ctx context.Context, actor auth.Principal, id int64) (*Appointment, error) {
	a, err := s.GetAppointment(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if err := checkTransition(a.Status, StatusCancelled); err != nil {
		return nil, err
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.transition(ctx, actor, a, StatusCancelled); err != nil {
			return err
		}
		if actor.IsPatient() {
			return s.notifier.Notify(ctx, notification.ToAdmins("Cita cancelada por el paciente",
				fmt.Sprintf("La cita #%d del %s fue cancelada", a.ID, a.Date.Format(dateLayout)),
				notification.TypeAppointment))
		}
		return s.notifyPatient(ctx, a.PatientID, "Cita cancelada",
			fmt.Sprintf("Su cita del %s fue cancelada", a.Date.Format(dateLayout)),
			notification.TypeAppointment)
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// Update dispatches PUT /appointments/:id: a date reschedules, a status moves
// the state machine.
func (s *Service) Update(ctx context.Context, actor auth.Principal, id int64, in UpdateInput) (*Appointment, error) {
	date := in.Date.Ptr()
	switch {
	case date != nil:
		if in.Status != "" && in.Status != StatusRescheduled && in.Status != StatusScheduled {
			return nil, apperr.Validation("status and date cannot change together")
		}
		return s.Reschedule(ctx, actor, id, *date)
	case in.Status != "":
		return s.UpdateStatus(ctx, actor, id, in.Status)
	default:
		return nil, apperr.Validation("status or date is required")
	}
}

// CompleteForConsultation finalizes an appointment when a consultation is
// recorded against it. Already finalizada appointments are left as they are;
// cancelled or missed ones cannot take a consultation.
func (s *Service) CompleteForConsultation(ctx context.Context, actor auth.Principal, id int64) (*Appointment, error) {
	a, err := s.appointments.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch a.Status {
	case StatusCompleted:
		return a, nil
	case StatusScheduled, StatusInProgress:
		if err := s.transition(ctx, actor, a, StatusCompleted); err != nil {
			if errors.Is(err, apperr.ErrInvalidTransition) {
				return nil, apperr.Conflict("appointment changed status while recording the consultation")
			}
			return nil, err
		}
		return a, nil
	default:
		return nil, apperr.Conflict("cannot record a consultation for a %s appointment", a.Status)
	}
}
