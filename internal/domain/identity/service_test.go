package identity

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/notification"
)

// -- Mock Repositories --

type mockUserRepo struct {
	mu    sync.Mutex
	users map[int64]*User
	next  int64
}

func newMockUserRepo() *mockUserRepo {
	return &mockUserRepo{users: make(map[int64]*User)}
}

func (m *mockUserRepo) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return apperr.Conflict("email already registered")
		}
	}
	m.next++
	u.ID = m.next
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *mockUserRepo) GetByID(_ context.Context, id int64) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, apperr.NotFound("user not found")
	}
	cp := *u
	return &cp, nil
}

func (m *mockUserRepo) GetByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if strings.EqualFold(u.Email, email) {
			cp := *u
			return &cp, nil
		}
	}
	return nil, apperr.NotFound("user not found")
}

func (m *mockUserRepo) List(_ context.Context, f UserFilter, limit, offset int) ([]*User, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*User
	for id := int64(1); id <= m.next; id++ {
		u, ok := m.users[id]
		if !ok {
			continue
		}
		if f.Approval != "" && u.Approval != f.Approval {
			continue
		}
		if f.Role != "" && u.Role != f.Role {
			continue
		}
		out = append(out, u)
	}
	return out, len(out), nil
}

func (m *mockUserRepo) SetApproval(_ context.Context, id int64, from, to Approval) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.Approval != from {
		return false, nil
	}
	u.Approval = to
	return true, nil
}

type mockPatientRepo struct {
	patients map[int64]*Patient
	next     int64
}

func newMockPatientRepo() *mockPatientRepo {
	return &mockPatientRepo{patients: make(map[int64]*Patient)}
}

func (m *mockPatientRepo) Create(_ context.Context, p *Patient) error {
	m.next++
	p.ID = m.next
	m.patients[p.ID] = p
	return nil
}

func (m *mockPatientRepo) GetByID(_ context.Context, id int64) (*Patient, error) {
	p, ok := m.patients[id]
	if !ok {
		return nil, apperr.NotFound("patient not found")
	}
	return p, nil
}

func (m *mockPatientRepo) GetByUserID(_ context.Context, userID int64) (*Patient, error) {
	for _, p := range m.patients {
		if p.UserID == userID {
			return p, nil
		}
	}
	return nil, apperr.NotFound("patient not found")
}

type mockDoctorRepo struct {
	doctors map[int64]*Doctor
	next    int64
}

func newMockDoctorRepo() *mockDoctorRepo {
	return &mockDoctorRepo{doctors: make(map[int64]*Doctor)}
}

func (m *mockDoctorRepo) Create(_ context.Context, d *Doctor) error {
	m.next++
	d.ID = m.next
	m.doctors[d.ID] = d
	return nil
}

func (m *mockDoctorRepo) GetByID(_ context.Context, id int64) (*Doctor, error) {
	d, ok := m.doctors[id]
	if !ok {
		return nil, apperr.NotFound("doctor not found")
	}
	return d, nil
}

func (m *mockDoctorRepo) GetByUserID(_ context.Context, userID int64) (*Doctor, error) {
	for _, d := range m.doctors {
		if d.UserID == userID {
			return d, nil
		}
	}
	return nil, apperr.NotFound("doctor not found")
}

func (m *mockDoctorRepo) List(_ context.Context, specialty string, limit, offset int) ([]*Doctor, int, error) {
	var out []*Doctor
	for id := int64(1); id <= m.next; id++ {
		if d, ok := m.doctors[id]; ok && (specialty == "" || strings.EqualFold(d.Specialty, specialty)) {
			out = append(out, d)
		}
	}
	return out, len(out), nil
}

type passthroughTx struct{}

func (passthroughTx) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type recordingNotifier struct {
	notices []notification.Notice
	err     error
}

func (n *recordingNotifier) Notify(_ context.Context, in notification.Notice) error {
	if n.err != nil {
		return n.err
	}
	n.notices = append(n.notices, in)
	return nil
}

type testEnv struct {
	svc      *Service
	users    *mockUserRepo
	patients *mockPatientRepo
	doctors  *mockDoctorRepo
	notifier *recordingNotifier
}

func newTestEnv() *testEnv {
	env := &testEnv{
		users:    newMockUserRepo(),
		patients: newMockPatientRepo(),
		doctors:  newMockDoctorRepo(),
		notifier: &recordingNotifier{},
	}
	tokens := auth.NewTokenIssuer([]byte("test-signing-key"), "sgpd-test", time.Hour)
	env.svc = NewService(env.users, env.patients, env.doctors, passthroughTx{}, env.notifier,
		tokens, bcrypt.MinCost, zerolog.Nop())
	return env
}

var admin = auth.Principal{UserID: 99, Role: auth.RoleAdmin}

func validRegistration() RegisterInput {
	return RegisterInput{
		Email:          "Ana@Example.com",
		Password:       "s3cretpass",
		FullName:       "Ana Pérez",
		DocumentNumber: "12345678",
	}
}

// -- Tests --

func TestService_Register(t *testing.T) {
	env := newTestEnv()
	u, p, err := env.svc.Register(context.Background(), validRegistration())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if u.Role != auth.RolePatient || u.Approval != ApprovalPending {
		t.Errorf("expected pending patient, got role=%s approval=%s", u.Role, u.Approval)
	}
	if u.Email != "ana@example.com" {
		t.Errorf("expected normalized email, got %s", u.Email)
	}
	if u.PasswordHash == "s3cretpass" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretpass")) != nil {
		t.Error("expected bcrypt hash of the password")
	}
	if p.UserID != u.ID {
		t.Errorf("patient not linked to user: %+v", p)
	}
	if len(env.notifier.notices) != 1 || env.notifier.notices[0].UserID != nil {
		t.Fatalf("expected one broadcast notice to admins, got %+v", env.notifier.notices)
	}
}

func TestService_RegisterErrors(t *testing.T) {
	env := newTestEnv()
	if _, _, err := env.svc.Register(context.Background(), validRegistration()); err != nil {
		t.Fatalf("setup: %v", err)
	}

	short := validRegistration()
	short.Email = "other@example.com"
	short.Password = "short"

	noDoc := validRegistration()
	noDoc.Email = "nodoc@example.com"
	noDoc.DocumentNumber = "  "

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"duplicate email", validRegistration(), apperr.ErrConflict},
		{"short password", short, apperr.ErrValidation},
		{"missing document", noDoc, apperr.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := env.svc.Register(context.Background(), tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestService_LoginRequiresApproval(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	u, _, err := env.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := env.svc.Login(ctx, "ana@example.com", "s3cretpass"); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected forbidden for pending account, got %v", err)
	}

	if _, err := env.svc.ReviewRegistration(ctx, admin, u.ID, ApprovalApproved); err != nil {
		t.Fatalf("approve: %v", err)
	}
	res, err := env.svc.Login(ctx, " ANA@example.com ", "s3cretpass")
	if err != nil {
		t.Fatalf("login after approval: %v", err)
	}
	if res.Token == "" || res.User.ID != u.ID {
		t.Errorf("unexpected login result: %+v", res)
	}

	p, err := auth.ParseToken(res.Token, auth.JWTConfig{Issuer: "sgpd-test", SigningKey: []byte("test-signing-key")})
	if err != nil {
		t.Fatalf("issued token does not verify: %v", err)
	}
	if p.UserID != u.ID || p.Role != auth.RolePatient {
		t.Errorf("unexpected principal in token: %+v", p)
	}
}

func TestService_LoginBadCredentials(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	if _, err := env.svc.CreateAdmin(ctx, "root@example.com", "adminpass1", "Root"); err != nil {
		t.Fatalf("setup: %v", err)
	}

	tests := []struct {
		name, email, password string
	}{
		{"unknown email", "nobody@example.com", "adminpass1"},
		{"wrong password", "root@example.com", "wrongpass1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.svc.Login(ctx, tt.email, tt.password)
			if !errors.Is(err, apperr.ErrUnauthenticated) {
				t.Errorf("expected unauthenticated, got %v", err)
			}
		})
	}
}

func TestService_ReviewRegistration(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	u, _, err := env.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	env.notifier.notices = nil

	if _, err := env.svc.ReviewRegistration(ctx, auth.Principal{UserID: 5, Role: auth.RoleDoctor}, u.ID, ApprovalApproved); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("expected forbidden for doctor, got %v", err)
	}

	got, err := env.svc.ReviewRegistration(ctx, admin, u.ID, ApprovalRejected)
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if got.Approval != ApprovalRejected {
		t.Errorf("expected rechazado, got %s", got.Approval)
	}
	if len(env.notifier.notices) != 1 || *env.notifier.notices[0].UserID != u.ID {
		t.Errorf("expected the user to be notified, got %+v", env.notifier.notices)
	}

	if _, err := env.svc.ReviewRegistration(ctx, admin, u.ID, ApprovalApproved); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("expected conflict on second review, got %v", err)
	}
	if _, err := env.svc.ReviewRegistration(ctx, admin, 404, ApprovalApproved); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := env.svc.ReviewRegistration(ctx, admin, u.ID, ApprovalPending); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error for pendiente, got %v", err)
	}
}

func TestService_CreateDoctorAndDirectory(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	in := CreateDoctorInput{
		Email:         "dr.gomez@example.com",
		Password:      "doctorpass",
		FullName:      "Luis Gómez",
		Specialty:     "Endocrinología",
		LicenseNumber: "MP-1234",
	}

	if _, err := env.svc.CreateDoctor(ctx, auth.Principal{UserID: 3, Role: auth.RolePatient}, in); !errors.Is(err, apperr.ErrAuthorization) {
		t.Fatalf("expected forbidden for patient, got %v", err)
	}

	d, err := env.svc.CreateDoctor(ctx, admin, in)
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}
	u, err := env.users.GetByID(ctx, d.UserID)
	if err != nil {
		t.Fatalf("doctor user missing: %v", err)
	}
	if u.Role != auth.RoleDoctor || u.Approval != ApprovalApproved {
		t.Errorf("expected approved doctor account, got %+v", u)
	}

	id, err := env.svc.DoctorIDForUser(ctx, u.ID)
	if err != nil || id != d.ID {
		t.Errorf("DoctorIDForUser = %d, %v; want %d", id, err, d.ID)
	}
	uid, err := env.svc.UserIDForDoctor(ctx, d.ID)
	if err != nil || uid != u.ID {
		t.Errorf("UserIDForDoctor = %d, %v; want %d", uid, err, u.ID)
	}
	if _, err := env.svc.PatientIDForUser(ctx, u.ID); !errors.Is(err, apperr.ErrAuthorization) {
		t.Errorf("expected forbidden for doctor without patient record, got %v", err)
	}

	doctors, total, err := env.svc.ListDoctors(ctx, " endocrinología ", 20, 0)
	if err != nil || total != 1 || doctors[0].ID != d.ID {
		t.Errorf("ListDoctors = %v, %d, %v", doctors, total, err)
	}
}

func TestService_Me(t *testing.T) {
	env := newTestEnv()
	ctx := context.Background()
	u, p, err := env.svc.Register(ctx, validRegistration())
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	prof, err := env.svc.Me(ctx, auth.Principal{UserID: u.ID, Role: auth.RolePatient})
	if err != nil {
		t.Fatalf("Me: %v", err)
	}
	if prof.Patient == nil || prof.Patient.ID != p.ID || prof.Doctor != nil {
		t.Errorf("unexpected profile: %+v", prof)
	}
}

func TestService_ListUsersRejectsBadFilter(t *testing.T) {
	env := newTestEnv()
	if _, _, err := env.svc.ListUsers(context.Background(), UserFilter{Approval: "maybe"}, 20, 0); !errors.Is(err, apperr.ErrValidation) {
		t.Errorf("expected validation error, got %v", err)
	}
}
