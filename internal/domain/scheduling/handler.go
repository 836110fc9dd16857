package scheduling

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/clinicapi/clinic/internal/platform/auth"
	"github.com/clinicapi/clinic/internal/platform/policy"
	"github.com/clinicapi/clinic/internal/platform/validation"
	"github.com/clinicapi/clinic/pkg/pagination"
)

type Handler struct {
	svc  *Service
	gate auth.RoleGate
}

func NewHandler(svc *Service, gate auth.RoleGate) *Handler {
	return &Handler{svc: svc, gate: gate}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	can := func(res policy.Resource, op policy.Operation) echo.MiddlewareFunc {
		return auth.RequirePermission(h.gate, res, op)
	}

	api.GET("/appointments", h.ListAppointments, can(policy.ResAppointment, policy.OpList))
	api.GET("/appointments/:id", h.GetAppointment, can(policy.ResAppointment, policy.OpRead))
	api.POST("/appointments", h.CreateAppointment, can(policy.ResAppointment, policy.OpCreate))
	api.PUT("/appointments/:id", h.UpdateAppointment, can(policy.ResAppointment, policy.OpUpdate))
	api.DELETE("/appointments/:id", h.DeleteAppointment, can(policy.ResAppointment, policy.OpDelete))
}

func (h *Handler) CreateAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreateAppointmentRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.CreateAppointment(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, a)
}

func (h *Handler) GetAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.svc.GetAppointment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) ListAppointments(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	appointments, total, err := h.svc.ListAppointments(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(appointments, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateAppointmentRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	a, err := h.svc.UpdateAppointment(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, a)
}

func (h *Handler) DeleteAppointment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteAppointment(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
