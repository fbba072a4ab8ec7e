package identity

import (
	"time"

	"github.com/sgpd/sgpd/internal/platform/auth"
)

type Approval string

const (
	ApprovalPending  Approval = "pendiente"
	ApprovalApproved Approval = "aprobado"
	ApprovalRejected Approval = "rechazado"
)

func (a Approval) Valid() bool {
	switch a {
	case ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"fullName"`
	Role         auth.Role `json:"role"`
	Approval     Approval  `json:"approval"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Patient struct {
	ID             int64      `json:"id"`
	UserID         int64      `json:"userId"`
	DocumentNumber string     `json:"documentNumber"`
	BirthDate      *time.Time `json:"birthDate,omitempty"`
	Phone          *string    `json:"phone,omitempty"`
	DiabetesType   *string    `json:"diabetesType,omitempty"`
}

type Doctor struct {
	ID            int64   `json:"id"`
	UserID        int64   `json:"userId"`
	FullName      string  `json:"fullName"`
	Specialty     string  `json:"specialty"`
	LicenseNumber string  `json:"licenseNumber"`
	MedicalCenter *string `json:"medicalCenter,omitempty"`
}

// Profile is the authenticated user with the role-specific record attached.
type Profile struct {
	User    *User    `json:"user"`
	Patient *Patient `json:"patient,omitempty"`
	Doctor  *Doctor  `json:"doctor,omitempty"`
}

type RegisterInput struct {
	Email          string     `json:"email" validate:"required,email,max=255"`
	Password       string     `json:"password" validate:"required,min=8,max=72"`
	FullName       string     `json:"fullName" validate:"notblank,max=255"`
	DocumentNumber string     `json:"documentNumber" validate:"notblank,max=32"`
	BirthDate      *time.Time `json:"birthDate"`
	Phone          *string    `json:"phone" validate:"omitempty,max=32"`
	DiabetesType   *string    `json:"diabetesType" validate:"omitempty,oneof=tipo1 tipo2 gestacional otro"`
}

type CreateDoctorInput struct {
	Email         string  `json:"email" validate:"required,email,max=255"`
	Password      string  `json:"password" validate:"required,min=8,max=72"`
	FullName      string  `json:"fullName" validate:"notblank,max=255"`
	Specialty     string  `json:"specialty" validate:"notblank,max=128"`
	LicenseNumber string  `json:"licenseNumber" validate:"notblank,max=64"`
	MedicalCenter *string `json:"medicalCenter" validate:"omitempty,max=255"`
}

type LoginInput struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	User      *User     `json:"user"`
}

type ReviewInput struct {
	Approval Approval `json:"approval" validate:"required,oneof=aprobado rechazado"`
}
