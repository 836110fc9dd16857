package auth

import (
	"github.com/labstack/echo/v4"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// RoleGate is the policy check behind RequirePermission.
type RoleGate interface {
	RoleAllowed(c policy.Caller, res policy.Resource, op policy.Operation) bool
}

// RequirePermission rejects callers none of whose roles is in the allow-set
// for res/op. Ownership is checked later by the service; this gate only
// stops roles that could never succeed. No role bypasses it.
func RequirePermission(gate RoleGate, res policy.Resource, op policy.Operation) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, err := CallerFromContext(c)
			if err != nil {
				return err
			}
			if !gate.RoleAllowed(caller, res, op) {
				return apperr.Forbidden("your role may not %s %s records", op, res)
			}
			return next(c)
		}
	}
}
