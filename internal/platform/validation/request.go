package validation

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/clinicapi/clinic/internal/platform/apperr"
)

// Bind decodes the request into dst and runs the registered validator. A
// body rejected for its size keeps its 413.
func Bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		if tooLarge := entityTooLarge(err); tooLarge != nil {
			return tooLarge
		}
		return apperr.Wrap(apperr.CodeValidationFailed, err, "malformed request body")
	}
	return c.Validate(dst)
}

// entityTooLarge finds a 413 in err, which echo may have wrapped in a 400.
func entityTooLarge(err error) *echo.HTTPError {
	for err != nil {
		var he *echo.HTTPError
		if !errors.As(err, &he) {
			return nil
		}
		if he.Code == http.StatusRequestEntityTooLarge {
			return he
		}
		err = he.Internal
	}
	return nil
}

// ParamUUID parses the named path parameter as a UUID.
func ParamUUID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, apperr.Invalid(name, "must be a valid UUID")
	}
	return id, nil
}
