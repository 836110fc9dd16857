package admin

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

// RegisterRoutes mounts the admin routes. public wraps the unauthenticated
// login and registration routes only.
func (h *Handler) RegisterRoutes(api *echo.Group, public ...echo.MiddlewareFunc) {
	api.POST("/session", h.Login, public...)
	api.POST("/users", h.Register, public...)

	can := func(res policy.Resource, op policy.Operation) echo.MiddlewareFunc {
		return auth.RequirePermission(h.gate, res, op)
	}

	api.GET("/users", h.ListUsers, can(policy.ResUser, policy.OpList))
	api.GET("/users/:id", h.GetUser, can(policy.ResUser, policy.OpRead))
	api.PUT("/users/:id", h.UpdateUser, can(policy.ResUser, policy.OpUpdate))
	api.DELETE("/users/:id", h.DeleteUser, can(policy.ResUser, policy.OpDelete))

	api.GET("/departments", h.ListDepartments, can(policy.ResDepartment, policy.OpList))
	api.GET("/departments/:id", h.GetDepartment, can(policy.ResDepartment, policy.OpRead))
	api.POST("/departments", h.CreateDepartment, can(policy.ResDepartment, policy.OpCreate))
	api.PUT("/departments/:id", h.UpdateDepartment, can(policy.ResDepartment, policy.OpUpdate))
	api.DELETE("/departments/:id", h.DeleteDepartment, can(policy.ResDepartment, policy.OpDelete))
}

// -- Session Handlers --

func (h *Handler) Register(c echo.Context) error {
	var req RegisterRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.Register(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, u)
}

func (h *Handler) Login(c echo.Context) error {
	var req LoginRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	session, err := h.svc.Login(c.Request().Context(), req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, session)
}

// -- User Handlers --

func (h *Handler) GetUser(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	u, err := h.svc.GetUser(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) ListUsers(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	users, total, err := h.svc.ListUsers(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(users, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateUser(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateUserRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	u, err := h.svc.UpdateUser(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, u)
}

func (h *Handler) DeleteUser(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteUser(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Department Handlers --

func (h *Handler) CreateDepartment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req DepartmentRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.CreateDepartment(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, d)
}

func (h *Handler) GetDepartment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.svc.GetDepartment(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) ListDepartments(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	depts, total, err := h.svc.ListDepartments(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(depts, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateDepartment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req DepartmentRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	d, err := h.svc.UpdateDepartment(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, d)
}

func (h *Handler) DeleteDepartment(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteDepartment(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
