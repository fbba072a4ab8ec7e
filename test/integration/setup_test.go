//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/sgpd/sgpd/internal/domain/clinical"
	"github.com/sgpd/sgpd/internal/domain/identity"
	"github.com/sgpd/sgpd/internal/domain/scheduling"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/db"
	"github.com/sgpd/sgpd/internal/platform/notification"
	"github.com/sgpd/sgpd/internal/platform/outbox"
)

// globalPool is migrated once in TestMain and shared by every test. Tests
// isolate themselves by creating their own users.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	if _, err := exec.LookPath("docker"); err != nil && os.Getenv("SGPD_TEST_DATABASE_URL") == "" {
		fmt.Fprintln(os.Stderr, "skipping integration tests: docker not found and SGPD_TEST_DATABASE_URL unset")
		os.Exit(0)
	}

	ctx := context.Background()
	connStr := os.Getenv("SGPD_TEST_DATABASE_URL")
	cleanup := func() {}
	if connStr == "" {
		pg, err := startPostgres(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start postgres: %v\n", err)
			os.Exit(1)
		}
		connStr, cleanup = pg.ConnStr, pg.Stop
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	if _, err := db.NewMigrator(pool, findMigrationsDir()).Up(ctx); err != nil {
		pool.Close()
		cleanup()
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	pool.Close()
	cleanup()
	os.Exit(code)
}

func findMigrationsDir() string {
	_, filename, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(filename), "..", "..", "migrations")
}

// stack is the service graph built the same way as sgpd-server serve.
type stack struct {
	identity      *identity.Service
	scheduling    *scheduling.Service
	clinical      *clinical.Service
	notifications *notification.Service
}

func newStack() *stack {
	logger := zerolog.Nop()
	tx := db.NewTxManager(globalPool)
	notifications := notification.NewService(notification.NewRepoPG(globalPool), outbox.NewPGStore(globalPool), tx)
	tokens := auth.NewTokenIssuer([]byte("integration-signing-key-0123456789"), "sgpd-test", time.Hour)
	id := identity.NewService(identity.NewUserRepo(globalPool), identity.NewPatientRepo(globalPool),
		identity.NewDoctorRepo(globalPool), tx, notifications, tokens, bcrypt.MinCost, logger)
	sched := scheduling.NewService(scheduling.NewRequestRepoPG(globalPool), scheduling.NewAppointmentRepoPG(globalPool),
		id, notifications, tx, logger)
	clin := clinical.NewService(clinical.NewHistoryRepoPG(globalPool), clinical.NewTreatmentRepoPG(globalPool),
		sched, id, notifications, tx, logger)
	return &stack{identity: id, scheduling: sched, clinical: clin, notifications: notifications}
}

// actors holds one approved admin, doctor and patient, unique to the test.
type actors struct {
	admin     auth.Principal
	doctor    auth.Principal
	doctorID  int64
	patient   auth.Principal
	patientID int64
}

func seedActors(t *testing.T, ctx context.Context, s *stack) actors {
	t.Helper()
	suffix := uuid.NewString()[:8]

	admin, err := s.identity.CreateAdmin(ctx, "admin-"+suffix+"@sgpd.test", "admin-password", "Admin "+suffix)
	if err != nil {
		t.Fatalf("create admin: %v", err)
	}
	adminP := auth.Principal{UserID: admin.ID, Role: auth.RoleAdmin}

	doc, err := s.identity.CreateDoctor(ctx, adminP, identity.CreateDoctorInput{
		Email:         "doctor-" + suffix + "@sgpd.test",
		Password:      "doctor-password",
		FullName:      "Dra. Gómez " + suffix,
		Specialty:     "endocrinología",
		LicenseNumber: "MP-" + suffix,
	})
	if err != nil {
		t.Fatalf("create doctor: %v", err)
	}

	user, patient, err := s.identity.Register(ctx, identity.RegisterInput{
		Email:          "patient-" + suffix + "@sgpd.test",
		Password:       "patient-password",
		FullName:       "Ana " + suffix,
		DocumentNumber: "DNI-" + suffix,
	})
	if err != nil {
		t.Fatalf("register patient: %v", err)
	}
	if _, err := s.identity.ReviewRegistration(ctx, adminP, user.ID, identity.ApprovalApproved); err != nil {
		t.Fatalf("approve patient: %v", err)
	}

	return actors{
		admin:     adminP,
		doctor:    auth.Principal{UserID: doc.UserID, Role: auth.RoleDoctor},
		doctorID:  doc.ID,
		patient:   auth.Principal{UserID: user.ID, Role: auth.RolePatient},
		patientID: patient.ID,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(v int) *int       { return &v }
