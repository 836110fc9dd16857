package identity

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

	api.GET("/doctors", h.ListDoctors, can(policy.ResDoctor, policy.OpList))
	api.GET("/doctors/:id", h.GetDoctor, can(policy.ResDoctor, policy.OpRead))
	api.POST("/doctors", h.CreateDoctor, can(policy.ResDoctor, policy.OpCreate))
	api.PUT("/doctors/:id", h.UpdateDoctor, can(policy.ResDoctor, policy.OpUpdate))
	api.DELETE("/doctors/:id", h.DeleteDoctor, can(policy.ResDoctor, policy.OpDelete))

	api.GET("/patients", h.ListPatients, can(policy.ResPatient, policy.OpList))
	api.GET("/patients/:id", h.GetPatient, can(policy.ResPatient, policy.OpRead))
	api.POST("/patients", h.CreatePatient, can(policy.ResPatient, policy.OpCreate))
	api.PUT("/patients/:id", h.UpdatePatient, can(policy.ResPatient, policy.OpUpdate))
	api.DELETE("/patients/:id", h.DeletePatient, can(policy.ResPatient, policy.OpDelete))
}

// -- Doctor Handlers --

func (h *Handler) CreateDoctor(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreateDoctorRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.CreateDoctor(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDoctor(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDoctor(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDoctors(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	doctors, total, err := h.svc.ListDoctors(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(doctors, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateDoctor(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateDoctorRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.UpdateDoctor(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDoctor(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDoctor(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Patient Handlers --

func (h *Handler) CreatePatient(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreatePatientRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.CreatePatient(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	p, err := h.svc.GetPatient(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	patients, total, err := h.svc.ListPatients(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(patients, total, p.Limit, p.Offset))
}

func (h *Handler) UpdatePatient(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdatePatientRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	p, err := h.svc.UpdatePatient(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) DeletePatient(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePatient(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
