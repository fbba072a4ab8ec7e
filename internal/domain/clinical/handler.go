package clinical

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
	api.GET("/medical-history", h.ListHistory)
	api.GET("/treatments", h.ListTreatments)

	staff := api.Group("", auth.RequireRole(auth.RoleDoctor))
	staff.POST("/medical-history", h.RecordConsultation)
	staff.PUT("/treatments/:id", h.UpdateTreatment)
}

func patientIDParam(c echo.Context) (int64, error) {
	raw := c.QueryParam("patientId")
	if raw == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid patientId")
	}
	return id, nil
}

func (h *Handler) RecordConsultation(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	var req ConsultationInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	res, err := h.svc.RecordConsultation(c.Request().Context(), p, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) ListHistory(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	patientID, err := patientIDParam(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	entries, err := h.svc.HistoryForPatient(c.Request().Context(), p, patientID)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, entries)
}

func (h *Handler) ListTreatments(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	patientID, err := patientIDParam(c)
	if err != nil {
		return apperr.HTTP(err)
	}
	pg := pagination.FromContext(c)
	f := TreatmentFilter{PatientID: patientID, Status: TreatmentStatus(c.QueryParam("status"))}
	items, total, err := h.svc.ListTreatments(c.Request().Context(), p, f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) UpdateTreatment(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req TreatmentUpdateInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	t, err := h.svc.UpdateTreatmentStatus(c.Request().Context(), p, id, req.Status)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, t)
}
