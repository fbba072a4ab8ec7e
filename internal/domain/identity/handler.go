package identity

import (
	"net/http"

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
	api.POST("/auth/register", h.Register)
	api.POST("/auth/login", h.Login)
	api.GET("/auth/me", h.Me)

	// Any authenticated user can browse doctors when filing a request.
	api.GET("/doctors", h.ListDoctors)

	admin := api.Group("", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/users", h.ListUsers)
	admin.PUT("/users/:id/approval", h.ReviewRegistration)
	admin.POST("/doctors", h.CreateDoctor)
}

func (h *Handler) Register(c echo.Context) error {
	var req RegisterInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	u, p, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, Profile{User: u, Patient: p})
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	res, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, res)
}

func (h *Handler) Me(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	prof, err := h.svc.Me(c.Request().Context(), p)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, prof)
}

func (h *Handler) ListUsers(c echo.Context) error {
	pg := pagination.FromContext(c)
	f := UserFilter{
		Approval: Approval(c.QueryParam("approval")),
		Role:     auth.Role(c.QueryParam("role")),
	}
	users, total, err := h.svc.ListUsers(c.Request().Context(), f, pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, pg))
}

func (h *Handler) ReviewRegistration(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	id, err := validate.ParamID(c, "id")
	if err != nil {
		return apperr.HTTP(err)
	}
	var req ReviewInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	u, err := h.svc.ReviewRegistration(c.Request().Context(), p, id, req.Approval)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) CreateDoctor(c echo.Context) error {
	p, err := auth.CurrentPrincipal(c)
	if err != nil {
		return err
	}
	var req CreateDoctorInput
	if err := validate.Bind(c, &req); err != nil {
		return apperr.HTTP(err)
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), p, req)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	pg := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), c.QueryParam("specialty"), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTP(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, pg))
}
