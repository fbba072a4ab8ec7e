package scheduling

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/sgpd/sgpd/internal/platform/apperr"
	"github.com/sgpd/sgpd/internal/platform/auth"
	"github.com/sgpd/sgpd/internal/platform/validate"
	"github.com/sgpd/sgpd/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Ownership for patients is enforced by the service.
	api.POST("/appointment-requests", h.SubmitRequest)
	api.GET("/appointment-requests", h.ListRequests)
	api.GET("/appointment-requests/:id", h.GetRequest)
	api.DELETE("/appointment-requests/:id", h.CancelRequest)

	api.GET("/appointments", h.ListAppointments)
	api.GET("/appointments/:id", h.GetAppointment)
	api.GET("/appointments/:id/history", h.History)
	api.PUT("/appointments/:id", h.UpdateAppointment)
	api.DELETE("/appointments/:id", h.CancelAppointment)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor))
	staff.PUT("/appointment-requests/:id", h.TriageRequest)
	staff.POST("/appointments", h.BookAppointment)
}

func queryInt64(c echo.Context, name string) (int64, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return v, nil
}

// -- Appointment Requests --

func (h *Handler) SubmitRequest(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	var req SubmitRequestInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	r, err := h.svc.SubmitRequest(c.Request().Context(), p, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, r)
}

func (h *Handler) ListRequests(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := RequestFilter{Status: RequestStatus(c.QueryParam("status"))}
	if f.PatientID, err = queryInt64(c, "patientId"); err != nil {
		return apperr.HTTP(err)
	}
	items, total, err := h.svc.ListRequests(c.Request().Context(), p, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetRequest(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	r, err := h.svc.GetRequest(c.Request().Context(), p, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, r)
}

type triageResponse struct {
	Request     *AppointmentRequest `json:"request"`
	Appointment *Appointment        `json:"appointment,omitempty"`
}

func (h *Handler) TriageRequest(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req TriageInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := req.Decision()
	if err != nil {
		return apperr.HTTP(err)
	}
	r, appt, err := h.svc.TriageRequest(c.Request().Context(), p, id, d)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, triageResponse{Request: r, Appointment: appt})
}

func (h *Handler) CancelRequest(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	if err := h.svc.CancelRequest(c.Request().Context(), p, id); err != nil {
		return apperr.HTTP(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Appointments --

func (h *Handler) BookAppointment(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	var req BookInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	a, err := h.svc.BookAppointment(c.Request().Context(), p, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	pg := pagination.FromContext(c)
	f := AppointmentFilter{Status: Status(c.QueryParam("status"))}
	if f.PatientID, err = queryInt64(c, "patientId"); err != nil {
		return apperr.HTTP(err)
	}
	if f.DoctorID, err = queryInt64(c, "doctorId"); err != nil {
		return apperr.HTTP(err)
	}
	items, total, err := h.svc.ListAppointments(c.Request().Context(), p, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) GetAppointment(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), p, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) History(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	changes, err := h.svc.History(c.Request().Context(), p, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, changes)
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req UpdateInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	a, err := h.svc.Update(c.Request().Context(), p, id, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) CancelAppointment(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	a, err := h.svc.Cancel(c.Request().Context(), p, id)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, a)
}
