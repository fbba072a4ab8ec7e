package identity

import (
	"context"

	"github.com/sgpd/sgpd/internal/platform/auth"
)

type UserFilter struct {
	Approval Approval
	Role     auth.Role
}

type UserRepository interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id int64) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error)
	// SetApproval moves a user from one approval state to another and reports
	// whether the row was still in the expected state.
	SetApproval(ctx context.Context, id int64, from, to Approval) (bool, error)
}

type PatientRepository interface {
	Create(ctx context.Context, p *Patient) error
	GetByID(ctx context.Context, id int64) (*Patient, error)
	GetByUserID(ctx context.Context, userID int64) (*Patient, error)
}

type DoctorRepository interface {
	Create(ctx context.Context, d *Doctor) error
	GetByID(ctx context.Context, id int64) (*Doctor, error)
	GetByUserID(ctx context.Context, userID int64) (*Doctor, error)
	List(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error)
}
