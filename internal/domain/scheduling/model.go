package scheduling

import (
	"strings"
	"time"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/pkg/jsontime"
)

type AppointmentRequest struct {
	ID               int64         `json:"id"`
	PatientID        int64         `json:"patientId"`
	Message          string        `json:"message"`
	PreferredDate    *time.Time    `json:"preferredDate,omitempty"`
	Specialty        *string       `json:"specialty,omitempty"`
	Type             Type          `json:"type"`
	Status           RequestStatus `json:"status"`
	RejectionReason  *string       `json:"rejectionReason,omitempty"`
	AssignedDoctorID *int64        `json:"assignedDoctorId,omitempty"`
	AppointmentID    *int64        `json:"appointmentId,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

// Place is where an appointment happens: a room for presencial visits, a
// meeting link for virtual ones.
type Place struct {
	Location    *string `json:"location,omitempty"`
	Address     *string `json:"address,omitempty"`
	Room        *string `json:"room,omitempty"`
	MeetingLink *string `json:"meetingLink,omitempty"`
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func trimmed(s *string) *string {
	if blank(s) {
		return nil
	}
	v := strings.TrimSpace(*s)
	return &v
}

// normalize drops blank fields and checks that only the fields belonging to t
// are set.
func (p Place) normalize(t Type) (Place, error) {
	p = Place{
		Location:    trimmed(p.Location),
		Address:     trimmed(p.Address),
		Room:        trimmed(p.Room),
		MeetingLink: trimmed(p.MeetingLink),
	}
	switch t {
	case TypeInPerson:
		if p.Location == nil || p.Room == nil {
			return p, apperr.Validation("presencial appointments require location and room")
		}
		if p.MeetingLink != nil {
			return p, apperr.Validation("presencial appointments cannot have a meetingLink")
		}
	case TypeVirtual:
		if p.MeetingLink == nil {
			return p, apperr.Validation("virtual appointments require meetingLink")
		}
		if p.Location != nil || p.Room != nil || p.Address != nil {
			return p, apperr.Validation("virtual appointments cannot have location, address or room")
		}
	default:
		return p, apperr.Validation("type must be one of [presencial virtual]")
	}
	return p, nil
}

type Appointment struct {
	ID        int64     `json:"id"`
	PatientID int64     `json:"patientId"`
	DoctorID  int64     `json:"doctorId"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
	Type      Type      `json:"type"`
	Place
	Notes     *string   `json:"notes,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// StatusChange is one row of an appointment's audit trail. FromStatus is nil
// for the creation row; OldDate and NewDate are set for reschedules.
type StatusChange struct {
	ID            int64      `json:"id"`
	AppointmentID int64      `json:"appointmentId"`
	FromStatus    *Status    `json:"fromStatus"`
	ToStatus      Status     `json:"toStatus"`
	OldDate       *time.Time `json:"oldDate,omitempty"`
	NewDate       *time.Time `json:"newDate,omitempty"`
	ActorUserID   *int64     `json:"actorUserId"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// -- Inputs --

type SubmitRequestInput struct {
	// PatientID is only honoured for staff filing on a patient's behalf.
	PatientID     int64          `json:"patientId" validate:"omitempty,gt=0"`
	Message       string         `json:"message" validate:"notblank,max=2000"`
	PreferredDate *jsontime.Time `json:"preferredDate"`
	Specialty     *string        `json:"specialty" validate:"omitempty,max=128"`
	Type          Type           `json:"type" validate:"omitempty,oneof=presencial virtual"`
}

// Decision is the outcome of triaging a request: AcceptDecision or
// RejectDecision.
type Decision interface {
	decision()
}

type AcceptDecision struct {
	DoctorID int64
	Date     time.Time
	// Type defaults to the request's type when empty.
	Type  Type
	Place Place
	Notes *string
}

type RejectDecision struct {
	Reason string
}

func (AcceptDecision) decision() {}
func (RejectDecision) decision() {}

// TriageInput is the body of PUT /appointment-requests/:id.
type TriageInput struct {
	Status          RequestStatus  `json:"status" validate:"required,oneof=aceptada rechazada"`
	DoctorID        int64          `json:"doctorId" validate:"omitempty,gt=0"`
	Date            *jsontime.Time `json:"date"`
	Type            Type           `json:"type" validate:"omitempty,oneof=presencial virtual"`
	Location        *string        `json:"location" validate:"omitempty,max=255"`
	Address         *string        `json:"address" validate:"omitempty,max=255"`
	Room            *string        `json:"room" validate:"omitempty,max=64"`
	MeetingLink     *string        `json:"meetingLink" validate:"omitempty,url"`
	Notes           *string        `json:"notes"`
	RejectionReason *string        `json:"rejectionReason" validate:"omitempty,max=1000"`
}

func (in TriageInput) Decision() (Decision, error) {
	switch in.Status {
	case RequestAccepted:
		if in.DoctorID <= 0 {
			return nil, apperr.Validation("doctorId is required to accept a request")
		}
		date := in.Date.Ptr()
		if date == nil {
			return nil, apperr.Validation("date is required to accept a request")
		}
		return AcceptDecision{
			DoctorID: in.DoctorID,
			Date:     *date,
			Type:     in.Type,
			Place:    Place{Location: in.Location, Address: in.Address, Room: in.Room, MeetingLink: in.MeetingLink},
			Notes:    in.Notes,
		}, nil
	case RequestRejected:
		if blank(in.RejectionReason) {
			return nil, apperr.Validation("rejectionReason is required to reject a request")
		}
		return RejectDecision{Reason: strings.TrimSpace(*in.RejectionReason)}, nil
	}
	return nil, apperr.Validation("status must be one of [aceptada rechazada]")
}

type BookInput struct {
	PatientID   int64          `json:"patientId" validate:"required,gt=0"`
	DoctorID    int64          `json:"doctorId" validate:"omitempty,gt=0"`
	Date        *jsontime.Time `json:"date"`
	Type        Type           `json:"type" validate:"omitempty,oneof=presencial virtual"`
	Location    *string        `json:"location" validate:"omitempty,max=255"`
	Address     *string        `json:"address" validate:"omitempty,max=255"`
	Room        *string        `json:"room" validate:"omitempty,max=64"`
	MeetingLink *string        `json:"meetingLink" validate:"omitempty,url"`
	Notes       *string        `json:"notes"`
}

func (in BookInput) place() Place {
	return Place{Location: in.Location, Address: in.Address, Room: in.Room, MeetingLink: in.MeetingLink}
}

// UpdateInput is the body of PUT /appointments/:id. A date reschedules; a
// status moves the state machine.
type UpdateInput struct {
	Status Status         `json:"status" validate:"omitempty,oneof=programada en_atencion finalizada cancelada reprogramada no_asistio"`
	Date   *jsontime.Time `json:"date"`
}

type RequestFilter struct {
	PatientID int64
	Status    RequestStatus
}

type AppointmentFilter struct {
	PatientID int64
	DoctorID  int64
	Status    Status
}
