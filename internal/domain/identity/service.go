package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/notification"
)

const minPasswordLen = 8

type Notifier interface {
	Notify(ctx context.Context, n notification.Notice) error
}

type TokenIssuer interface {
	Issue(p auth.Principal) (string, time.Time, error)
}

type Service struct {
	users      UserRepository
	patients   PatientRepository
	doctors    DoctorRepository
	tx         db.Transactor
	notifier   Notifier
	tokens     TokenIssuer
	bcryptCost int
	// dummyHash keeps login timing uniform for unknown emails.
	dummyHash []byte
	logger    zerolog.Logger
}

func NewService(users UserRepository, patients PatientRepository, doctors DoctorRepository,
	tx db.Transactor, notifier Notifier, tokens TokenIssuer, bcryptCost int, logger zerolog.Logger) *Service {
	dummy, _ := bcrypt.GenerateFromPassword([]byte("sgpd-unknown-user"), bcryptCost)
	return &Service{
		users:      users,
		patients:   patients,
		doctors:    doctors,
		tx:         tx,
		notifier:   notifier,
		tokens:     tokens,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		logger:     logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *Service) hashPassword(password string) (string, error) {
	if len(password) < minPasswordLen {
		return "", apperr.Validation("password must be at least %d characters", minPasswordLen)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.bcryptCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Validation("password must be at most 72 bytes")
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

func (s *Service) newUser(email, password, fullName string, role auth.Role, approval Approval) (*User, error) {
	email = normalizeEmail(email)
	if email == "" {
		return nil, apperr.Validation("email is required")
	}
	if strings.TrimSpace(fullName) == "" {
		return nil, apperr.Validation("fullName is required")
	}
	hash, err := s.hashPassword(password)
	if err != nil {
		return nil, err
	}
	return &User{
		Email:        email,
		PasswordHash: hash,
		FullName:     strings.TrimSpace(fullName),
		Role:         role,
		Approval:     approval,
	}, nil
}

// Register creates a pending patient account and tells the admins about it.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*User, *Patient, error) {
	if strings.TrimSpace(in.DocumentNumber) == "" {
		return nil, nil, apperr.Validation("documentNumber is required")
	}
	u, err := s.newUser(in.Email, in.Password, in.FullName, auth.RolePatient, ApprovalPending)
	if err != nil {
		return nil, nil, err
	}
	p := &Patient{
		DocumentNumber: strings.TrimSpace(in.DocumentNumber),
		BirthDate:      in.BirthDate,
		Phone:          in.Phone,
		DiabetesType:   in.DiabetesType,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		p.UserID = u.ID
		if err := s.patients.Create(ctx, p); err != nil {
			return err
		}
		return s.notifier.Notify(ctx, notification.ToAdmins(
			"Nuevo registro de paciente",
			fmt.Sprintf("%s (%s) solicitó acceso al sistema", u.FullName, u.Email),
			notification.TypeAccount))
	})
	if err != nil {
		return nil, nil, err
	}
	return u, p, nil
}

// Login checks credentials and issues a token for approved accounts.
func (s *Service) Login(ctx context.Context, email, password string) (*LoginResult, error) {
	u, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return nil, apperr.Unauthenticated("invalid email or password")
		}
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, apperr.Unauthenticated("invalid email or password")
	}
	switch u.Approval {
	case ApprovalPending:
		return nil, apperr.Forbidden("account pending approval")
	case ApprovalRejected:
		return nil, apperr.Forbidden("account registration was rejected")
	}

	token, exp, err := s.tokens.Issue(auth.Principal{UserID: u.ID, Role: u.Role})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Int64("user_id", u.ID).Str("role", string(u.Role)).Msg("user logged in")
	return &LoginResult{Token: token, ExpiresAt: exp, User: u}, nil
}

func (s *Service) Me(ctx context.Context, p auth.Principal) (*Profile, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	prof := &Profile{User: u}
	switch u.Role {
	case auth.RolePatient:
		if prof.Patient, err = s.patients.GetByUserID(ctx, u.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	case auth.RoleDoctor:
		if prof.Doctor, err = s.doctors.GetByUserID(ctx, u.ID); err != nil && !errors.Is(err, apperr.ErrNotFound) {
			return nil, err
		}
	}
	return prof, nil
}

// ReviewRegistration approves or rejects a pending account. Only pending
// accounts can be reviewed.
func (s *Service) ReviewRegistration(ctx context.Context, actor auth.Principal, userID int64, decision Approval) (*User, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins can review registrations")
	}
	if decision != ApprovalApproved && decision != ApprovalRejected {
		return nil, apperr.Validation("approval must be one of [aprobado rechazado]")
	}

	var u *User
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.users.SetApproval(ctx, userID, ApprovalPending, decision)
		if err != nil {
			return err
		}
		if !ok {
			if _, err := s.users.GetByID(ctx, userID); err != nil {
				return err
			}
			return apperr.Conflict("registration already reviewed")
		}
		if u, err = s.users.GetByID(ctx, userID); err != nil {
			return err
		}

		title, msg := "Cuenta aprobada", "Su cuenta fue aprobada. Ya puede iniciar sesión."
		if decision == ApprovalRejected {
			title, msg = "Cuenta rechazada", "Su solicitud de registro fue rechazada."
		}
		return s.notifier.Notify(ctx, notification.ToUser(u.ID, title, msg, notification.TypeAccount))
	})
	if err != nil {
		return nil, err
	}
	return u, nil
}

// CreateDoctor registers an approved doctor account.
func (s *Service) CreateDoctor(ctx context.Context, actor auth.Principal, in CreateDoctorInput) (*Doctor, error) {
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden("only admins can create doctors")
	}
	if strings.TrimSpace(in.Specialty) == "" || strings.TrimSpace(in.LicenseNumber) == "" {
		return nil, apperr.Validation("specialty and licenseNumber are required")
	}
	u, err := s.newUser(in.Email, in.Password, in.FullName, auth.RoleDoctor, ApprovalApproved)
	if err != nil {
		return nil, err
	}
	d := &Doctor{
		FullName:      u.FullName,
		Specialty:     strings.TrimSpace(in.Specialty),
		LicenseNumber: strings.TrimSpace(in.LicenseNumber),
		MedicalCenter: in.MedicalCenter,
	}
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.users.Create(ctx, u); err != nil {
			return err
		}
		d.UserID = u.ID
		return s.doctors.Create(ctx, d)
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

// CreateAdmin bootstraps an approved admin account from the command line.
func (s *Service) CreateAdmin(ctx context.Context, email, password, fullName string) (*User, error) {
	u, err := s.newUser(email, password, fullName, auth.RoleAdmin, ApprovalApproved)
	if err != nil {
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) ListUsers(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	if f.Approval != "" && !f.Approval.Valid() {
		return nil, 0, apperr.Validation("invalid approval filter %q", f.Approval)
	}
	if f.Role != "" && !f.Role.Valid() {
		return nil, 0, apperr.Validation("invalid role filter %q", f.Role)
	}
	return s.users.List(ctx, f, limit, offset)
}

func (s *Service) ListDoctors(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, strings.TrimSpace(specialty), limit, offset)
}

// -- Directory lookups used by scheduling and clinical --

func (s *Service) PatientIDForUser(ctx context.Context, userID int64) (int64, error) {
	p, err := s.patients.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, apperr.Forbidden("no patient record for this account")
		}
		return 0, err
	}
	return p.ID, nil
}

func (s *Service) UserIDForPatient(ctx context.Context, patientID int64) (int64, error) {
	p, err := s.patients.GetByID(ctx, patientID)
	if err != nil {
		return 0, err
	}
	return p.UserID, nil
}

func (s *Service) DoctorIDForUser(ctx context.Context, userID int64) (int64, error) {
	d, err := s.doctors.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, apperr.ErrNotFound) {
			return 0, apperr.Forbidden("no doctor record for this account")
		}
		return 0, err
	}
	return d.ID, nil
}

func (s *Service) UserIDForDoctor(ctx context.Context, doctorID int64) (int64, error) {
	d, err := s.doctors.GetByID(ctx, doctorID)
	if err != nil {
		return 0, err
	}
	return d.UserID, nil
}

// DoctorExists reports NotFound for unknown or deleted doctors.
func (s *Service) DoctorExists(ctx context.Context, doctorID int64) error {
	_, err := s.doctors.GetByID(ctx, doctorID)
	return err
}
