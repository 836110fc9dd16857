package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Recovery converts a handler panic into an internal error so the client
// gets the usual error envelope. The panic value and stack are logged with
// the route and the authenticated subject, if any. http.ErrAbortHandler is
// re-raised for net/http to handle.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				req := c.Request()
				evt := logger.Error().
					Str("request_id", RequestIDFromContext(req.Context())).
					Str("method", req.Method).
					Str("route", c.Path()).
					Interface("panic", r).
					Bytes("stack", debug.Stack())
				if caller, ok := policy.CallerFrom(req.Context()); ok {
					evt = evt.Str("subject", caller.SubjectID.String())
				}
				evt.Msg("handler panicked")

				err = apperr.New(apperr.CodeInternal, "internal server error")
			}()
			return next(c)
		}
	}
}
