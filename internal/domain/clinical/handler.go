package clinical

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

	api.GET("/medical-records", h.ListMedicalRecords, can(policy.ResMedicalRecord, policy.OpList))
	api.GET("/medical-records/:id", h.GetMedicalRecord, can(policy.ResMedicalRecord, policy.OpRead))
	api.POST("/medical-records", h.CreateMedicalRecord, can(policy.ResMedicalRecord, policy.OpCreate))
	api.PUT("/medical-records/:id", h.UpdateMedicalRecord, can(policy.ResMedicalRecord, policy.OpUpdate))
	api.DELETE("/medical-records/:id", h.DeleteMedicalRecord, can(policy.ResMedicalRecord, policy.OpDelete))

	api.GET("/prescriptions", h.ListPrescriptions, can(policy.ResPrescription, policy.OpList))
	api.GET("/prescriptions/:id", h.GetPrescription, can(policy.ResPrescription, policy.OpRead))
	api.POST("/prescriptions", h.CreatePrescription, can(policy.ResPrescription, policy.OpCreate))
	api.PUT("/prescriptions/:id", h.UpdatePrescription, can(policy.ResPrescription, policy.OpUpdate))
	api.DELETE("/prescriptions/:id", h.DeletePrescription, can(policy.ResPrescription, policy.OpDelete))
}

// -- Medical Record Handlers --

func (h *Handler) CreateMedicalRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreateMedicalRecordRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	m, err := h.svc.CreateMedicalRecord(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, m)
}

func (h *Handler) GetMedicalRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	m, err := h.svc.GetMedicalRecord(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) ListMedicalRecords(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	records, total, err := h.svc.ListMedicalRecords(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(records, total, p.Limit, p.Offset))
}

func (h *Handler) UpdateMedicalRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdateMedicalRecordRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	m, err := h.svc.UpdateMedicalRecord(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, m)
}

func (h *Handler) DeleteMedicalRecord(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeleteMedicalRecord(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

// -- Prescription Handlers --

func (h *Handler) CreatePrescription(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	var req CreatePrescriptionRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	rx, err := h.svc.CreatePrescription(c.Request().Context(), caller, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, rx)
}

func (h *Handler) GetPrescription(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	rx, err := h.svc.GetPrescription(c.Request().Context(), caller, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) ListPrescriptions(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	p := pagination.FromContext(c)
	prescriptions, total, err := h.svc.ListPrescriptions(c.Request().Context(), caller, p.Limit, p.Offset)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(prescriptions, total, p.Limit, p.Offset))
}

func (h *Handler) UpdatePrescription(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	var req UpdatePrescriptionRequest
	if err := validation.Bind(c, &req); err != nil {
		return err
	}
	rx, err := h.svc.UpdatePrescription(c.Request().Context(), caller, id, req)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, rx)
}

func (h *Handler) DeletePrescription(c echo.Context) error {
	caller, err := auth.CallerFromContext(c)
	if err != nil {
		return err
	}
	id, err := validation.ParamUUID(c, "id")
	if err != nil {
		return err
	}
	if err := h.svc.DeletePrescription(c.Request().Context(), caller, id); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}
