package middleware

import (
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

// Logger writes one line per request. Expected client errors (4xx taxonomy
// codes) log at warn, everything else that failed at error.
func Logger(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)
			if err != nil {
				// Render now so the logged status matches the response.
				c.Error(err)
			}

			evt := logger.Info()
			if err != nil {
				if code := apperr.CodeOf(err); code != apperr.CodeInternal || c.Response().Status < 500 {
					evt = logger.Warn().Str("code", string(code))
				} else {
					evt = logger.Error().Err(err)
				}
			}

			rid, _ := c.Get("request_id").(string)
			evt = evt.
				Str("request_id", rid).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Int("status", c.Response().Status).
				Dur("latency", time.Since(start)).
				Str("remote_ip", c.RealIP())
			if caller, ok := policy.CallerFrom(req.Context()); ok {
				evt = evt.Str("subject", caller.SubjectID.String())
			}
			if route := c.Path(); route != "" {
				evt = evt.Str("route", route)
			}
			evt.Msg("request")

			return nil
		}
	}
}
