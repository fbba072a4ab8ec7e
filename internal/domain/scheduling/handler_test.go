package scheduling

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/validate"
)

func newJSONContext(e *echo.Echo, method, target, body string, p auth.Principal) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req = req.WithContext(auth.WithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func withID(c echo.Context, id string) echo.Context {
	c.SetParamNames("id")
	c.SetParamValues(id)
	return c
}

func assertHTTPStatus(t *testing.T, err error, want int) {
	t.Helper()
	var he *echo.HTTPError
	if !errors.As(err, &he) {
		t.Fatalf("expected *echo.HTTPError with %d, got %v", want, err)
	}
	if he.Code != want {
		t.Errorf("expected status %d, got %d (%v)", want, he.Code, he.Message)
	}
}

func newTestEcho() *echo.Echo {
	e := echo.New()
	e.Validator = validate.New()
	return e
}

func TestHandler_SubmitAndTriage(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()

	c, rec := newJSONContext(e, http.MethodPost, "/api/appointment-requests",
		`{"message":"dolor en el pie","type":"presencial"}`, patientAna)
	if err := h.SubmitRequest(c); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", rec.Code)
	}
	var created AppointmentRequest
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != RequestPending {
		t.Errorf("expected pendiente, got %s", created.Status)
	}

	body := `{"status":"aceptada","doctorId":7,"date":"2025-03-01T10:00","location":"Sede Norte","room":"201"}`
	c, rec = newJSONContext(e, http.MethodPut, "/api/appointment-requests/1", body, adminUser)
	if err := h.TriageRequest(withID(c, "1")); err != nil {
		t.Fatalf("triage: %v", err)
	}
	var res triageResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Request.Status != RequestAccepted || res.Appointment == nil || *res.Request.AppointmentID != res.Appointment.ID {
		t.Errorf("unexpected triage response: %s", rec.Body.String())
	}
	if !res.Appointment.Date.Equal(march1) || *res.Appointment.Location != "Sede Norte" {
		t.Errorf("unexpected appointment: %+v", res.Appointment)
	}

	c, _ = newJSONContext(e, http.MethodPut, "/api/appointment-requests/1",
		`{"status":"rechazada","rejectionReason":"tarde"}`, adminUser)
	assertHTTPStatus(t, h.TriageRequest(withID(c, "1")), http.StatusConflict)
}

func TestHandler_TriageBadBodies(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()
	env.submit(t)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown decision", `{"status":"pendiente"}`, http.StatusBadRequest},
		{"reject without reason", `{"status":"rechazada"}`, http.StatusBadRequest},
		{"accept without doctor", `{"status":"aceptada","date":"2025-03-01T10:00","location":"a","room":"b"}`, http.StatusBadRequest},
		{"bad date", `{"status":"aceptada","doctorId":7,"date":"mañana","location":"a","room":"b"}`, http.StatusBadRequest},
		{"bad meeting link", `{"status":"aceptada","doctorId":7,"date":"2025-03-01","type":"virtual","meetingLink":"not a url"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newJSONContext(e, http.MethodPut, "/api/appointment-requests/1", tt.body, adminUser)
			assertHTTPStatus(t, h.TriageRequest(withID(c, "1")), tt.want)
		})
	}
}

func TestHandler_SubmitEmptyMessage(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()

	c, _ := newJSONContext(e, http.MethodPost, "/api/appointment-requests", `{"message":"  "}`, patientAna)
	assertHTTPStatus(t, h.SubmitRequest(c), http.StatusBadRequest)
}

func TestHandler_CancelRequest(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()
	env.submit(t)

	c, _ := newJSONContext(e, http.MethodDelete, "/api/appointment-requests/1", "", patientLuz)
	assertHTTPStatus(t, h.CancelRequest(withID(c, "1")), http.StatusForbidden)

	c, rec := newJSONContext(e, http.MethodDelete, "/api/appointment-requests/1", "", patientAna)
	if err := h.CancelRequest(withID(c, "1")); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", rec.Code)
	}
}

func TestHandler_UpdateAppointment(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()
	env.book(t)

	tests := []struct {
		name  string
		actor auth.Principal
		body  string
		want  int
	}{
		{"patient cannot finalize", patientAna, `{"status":"finalizada"}`, http.StatusForbidden},
		{"unknown status", adminUser, `{"status":"borrada"}`, http.StatusBadRequest},
		{"finalize", doctor7, `{"status":"finalizada"}`, http.StatusOK},
		{"back to programada", doctor7, `{"status":"programada"}`, http.StatusConflict},
		{"reschedule finalizada", doctor7, `{"date":"2025-03-05T09:00"}`, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newJSONContext(e, http.MethodPut, "/api/appointments/1", tt.body, tt.actor)
			err := h.UpdateAppointment(withID(c, "1"))
			if tt.want == http.StatusOK {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				if rec.Code != http.StatusOK {
					t.Errorf("expected 200, got %d", rec.Code)
				}
				return
			}
			assertHTTPStatus(t, err, tt.want)
		})
	}
}

func TestHandler_GetAppointmentAndHistory(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()
	env.book(t)

	c, _ := newJSONContext(e, http.MethodGet, "/api/appointments/1", "", patientLuz)
	assertHTTPStatus(t, h.GetAppointment(withID(c, "1")), http.StatusForbidden)

	c, _ = newJSONContext(e, http.MethodGet, "/api/appointments/2", "", adminUser)
	assertHTTPStatus(t, h.GetAppointment(withID(c, "2")), http.StatusNotFound)

	c, _ = newJSONContext(e, http.MethodGet, "/api/appointments/x", "", adminUser)
	assertHTTPStatus(t, h.GetAppointment(withID(c, "x")), http.StatusBadRequest)

	c, rec := newJSONContext(e, http.MethodGet, "/api/appointments/1/history", "", patientAna)
	if err := h.History(withID(c, "1")); err != nil {
		t.Fatalf("history: %v", err)
	}
	var changes []StatusChange
	if err := json.Unmarshal(rec.Body.Bytes(), &changes); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(changes) != 1 || changes[0].ToStatus != StatusScheduled {
		t.Errorf("unexpected history: %s", rec.Body.String())
	}
}

func TestHandler_ListAppointmentsBadFilter(t *testing.T) {
	env := newTestEnv()
	h := NewHandler(env.svc)
	e := newTestEcho()

	c, _ := newJSONContext(e, http.MethodGet, "/api/appointments?doctorId=abc", "", adminUser)
	assertHTTPStatus(t, h.ListAppointments(c), http.StatusBadRequest)

	c, rec := newJSONContext(e, http.MethodGet, "/api/appointments?status=programada", "", adminUser)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("list: %v", err)
	}
	if body := rec.Body.String(); !strings.Contains(body, `"total":0`) || !strings.Contains(body, `"data":[]`) {
		t.Errorf("expected an empty data array, got %s", body)
	}
}
