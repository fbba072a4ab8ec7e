package scheduling

import (
	"github.com/sgpd/sgpd/internal/platform/apperr"
)

type Status string

const (
	StatusScheduled   Status = "programada"
	StatusInProgress  Status = "en_atencion"
	StatusCompleted   Status = "finalizada"
	StatusCancelled   Status = "cancelada"
	StatusRescheduled Status = "reprogramada"
	StatusNoShow      Status = "no_asistio"
)

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusInProgress, StatusCompleted, StatusCancelled, StatusRescheduled, StatusNoShow:
		return true
	}
	return false
}

func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// transitions lists the edges updateStatus may take. reprogramada is only
// ever entered by Reschedule, which returns the appointment to programada in
// the same transaction.
var transitions = map[Status][]Status{
	StatusScheduled:  {StatusInProgress, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusNoShow:     {StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func checkTransition(from, to Status) error {
	if !CanTransition(from, to) {
		return &apperr.InvalidTransitionError{Entity: "appointment", From: string(from), To: string(to)}
	}
	return nil
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "pendiente"
	RequestAccepted RequestStatus = "aceptada"
	RequestRejected RequestStatus = "rechazada"
)

func (s RequestStatus) Valid() bool {
	switch s {
	case RequestPending, RequestAccepted, RequestRejected:
		return true
	}
	return false
}

type Type string

const (
	TypeInPerson Type = "presencial"
	TypeVirtual  Type = "virtual"
)

func (t Type) Valid() bool {
	return t == TypeInPerson || t == TypeVirtual
}
