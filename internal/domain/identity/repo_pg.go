package identity

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/db"
)

// -- User Repository --

type userRepoPG struct{ pool *pgxpool.Pool }

func NewUserRepo(pool *pgxpool.Pool) UserRepository { return &userRepoPG{pool: pool} }

func (r *userRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const userCols = `id, email, password_hash, full_name, role, approval, created_at`

func scanUser(row pgx.Row) (*User, error) {
	var u User
	if err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.FullName, &u.Role, &u.Approval, &u.CreatedAt); err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *userRepoPG) Create(ctx context.Context, u *User) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, role, approval)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		u.Email, u.PasswordHash, u.FullName, u.Role, u.Approval).Scan(&u.ID, &u.CreatedAt)
	if apperr.IsUniqueViolation(err, "users_email_key") {
		return apperr.Conflict("email already registered")
	}
	return apperr.FromDB(err, "user")
}

func (r *userRepoPG) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	return u, apperr.FromDB(err, "user")
}

func (r *userRepoPG) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, err := scanUser(r.conn(ctx).QueryRow(ctx,
		`SELECT `+userCols+` FROM users WHERE LOWER(email) = LOWER($1) AND deleted_at IS NULL`, email))
	return u, apperr.FromDB(err, "user")
}

func (r *userRepoPG) List(ctx context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	where := `deleted_at IS NULL`
	var args []interface{}
	idx := 1
	if f.Approval != "" {
		where += fmt.Sprintf(` AND approval = $%d`, idx)
		args = append(args, f.Approval)
		idx++
	}
	if f.Role != "" {
		where += fmt.Sprintf(` AND role = $%d`, idx)
		args = append(args, f.Role)
		idx++
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "user")
	}

	query := fmt.Sprintf(`SELECT %s FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, userCols, where, idx, idx+1)
	rows, err := r.conn(ctx).Query(ctx, query, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "user")
	}
	defer rows.Close()

	items := make([]*User, 0)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, 0, apperr.FromDB(err, "user")
		}
		items = append(items, u)
	}
	return items, total, apperr.FromDB(rows.Err(), "user")
}

func (r *userRepoPG) SetApproval(ctx context.Context, id int64, from, to Approval) (bool, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE users SET approval = $3, updated_at = NOW()
		WHERE id = $1 AND approval = $2 AND deleted_at IS NULL`, id, from, to)
	if err != nil {
		return false, apperr.FromDB(err, "user")
	}
	return tag.RowsAffected() == 1, nil
}

// -- Patient Repository --

type patientRepoPG struct{ pool *pgxpool.Pool }

func NewPatientRepo(pool *pgxpool.Pool) PatientRepository { return &patientRepoPG{pool: pool} }

func (r *patientRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const patientCols = `id, user_id, document_number, birth_date, phone, diabetes_type`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	if err := row.Scan(&p.ID, &p.UserID, &p.DocumentNumber, &p.BirthDate, &p.Phone, &p.DiabetesType); err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *patientRepoPG) Create(ctx context.Context, p *Patient) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO patients (user_id, document_number, birth_date, phone, diabetes_type)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		p.UserID, p.DocumentNumber, p.BirthDate, p.Phone, p.DiabetesType).Scan(&p.ID)
	return apperr.FromDB(err, "patient")
}

func (r *patientRepoPG) GetByID(ctx context.Context, id int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE id = $1 AND deleted_at IS NULL`, id))
	return p, apperr.FromDB(err, "patient")
}

func (r *patientRepoPG) GetByUserID(ctx context.Context, userID int64) (*Patient, error) {
	p, err := scanPatient(r.conn(ctx).QueryRow(ctx,
		`SELECT `+patientCols+` FROM patients WHERE user_id = $1 AND deleted_at IS NULL`, userID))
	return p, apperr.FromDB(err, "patient")
}

// -- Doctor Repository --

type doctorRepoPG struct{ pool *pgxpool.Pool }

func NewDoctorRepo(pool *pgxpool.Pool) DoctorRepository { return &doctorRepoPG{pool: pool} }

func (r *doctorRepoPG) conn(ctx context.Context) db.Querier { return db.Conn(ctx, r.pool) }

const doctorSelect = `SELECT d.id, d.user_id, u.full_name, d.specialty, d.license_number, d.medical_center
	FROM doctors d JOIN users u ON u.id = d.user_id`

func scanDoctor(row pgx.Row) (*Doctor, error) {
	var d Doctor
	if err := row.Scan(&d.ID, &d.UserID, &d.FullName, &d.Specialty, &d.LicenseNumber, &d.MedicalCenter); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *doctorRepoPG) Create(ctx context.Context, d *Doctor) error {
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO doctors (user_id, specialty, license_number, medical_center)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		d.UserID, d.Specialty, d.LicenseNumber, d.MedicalCenter).Scan(&d.ID)
	return apperr.FromDB(err, "doctor")
}

func (r *doctorRepoPG) GetByID(ctx context.Context, id int64) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx,
		doctorSelect+` WHERE d.id = $1 AND d.deleted_at IS NULL AND u.deleted_at IS NULL`, id))
	return d, apperr.FromDB(err, "doctor")
}

func (r *doctorRepoPG) GetByUserID(ctx context.Context, userID int64) (*Doctor, error) {
	d, err := scanDoctor(r.conn(ctx).QueryRow(ctx,
		doctorSelect+` WHERE d.user_id = $1 AND d.deleted_at IS NULL AND u.deleted_at IS NULL`, userID))
	return d, apperr.FromDB(err, "doctor")
}

func (r *doctorRepoPG) List(ctx context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	where := ` WHERE d.deleted_at IS NULL AND u.deleted_at IS NULL AND u.approval = 'aprobado'`
	args := []interface{}{}
	if specialty != "" {
		where += ` AND LOWER(d.specialty) = LOWER($1)`
		args = append(args, specialty)
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx,
		`SELECT COUNT(*) FROM doctors d JOIN users u ON u.id = d.user_id`+where, args...).Scan(&total); err != nil {
		return nil, 0, apperr.FromDB(err, "doctor")
	}

	n := len(args)
	rows, err := r.conn(ctx).Query(ctx,
		doctorSelect+where+fmt.Sprintf(` ORDER BY u.full_name LIMIT $%d OFFSET $%d`, n+1, n+2),
		append(args, limit, offset)...)
	if err != nil {
		return nil, 0, apperr.FromDB(err, "doctor")
	}
	defer rows.Close()

	items := make([]*Doctor, 0)
	for rows.Next() {
		d, err := scanDoctor(rows)
		if err != nil {
			return nil, 0, apperr.FromDB(err, "doctor")
		}
		items = append(items, d)
	}
	return items, total, apperr.FromDB(rows.Err(), "doctor")
}
