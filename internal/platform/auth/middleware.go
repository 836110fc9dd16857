package auth

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicapi/clinic/internal/platform/apperr"
	"github.com/clinicapi/clinic/internal/platform/policy"
)

const callerContextKey = "caller"

// TokenValidator is the part of TokenService the middleware needs.
type TokenValidator interface {
	ValidateToken(token string) (policy.Caller, error)
}

// Middleware authenticates bearer tokens. Requests for which skipper
// returns true pass through unauthenticated. Missing, malformed and
// rejected tokens all produce the same Unauthenticated error.
func Middleware(tokens TokenValidator, skipper func(echo.Context) bool, logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if skipper != nil && skipper(c) {
				return next(c)
			}

			scheme, token, ok := strings.Cut(c.Request().Header.Get(echo.HeaderAuthorization), " ")
			token = strings.TrimSpace(token)
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				return apperr.ErrUnauthenticated
			}

			caller, err := tokens.ValidateToken(token)
			if err != nil {
				logger.Debug().Err(err).Str("path", c.Path()).Msg("token rejected")
				return err
			}

			c.Set(callerContextKey, caller)
			c.SetRequest(c.Request().WithContext(policy.WithCaller(c.Request().Context(), caller)))
			return next(c)
		}
	}
}

// CallerFromContext returns the authenticated caller of the request.
func CallerFromContext(c echo.Context) (policy.Caller, error) {
	if caller, ok := c.Get(callerContextKey).(policy.Caller); ok {
		return caller, nil
	}
	if caller, ok := policy.CallerFrom(c.Request().Context()); ok {
		return caller, nil
	}
	return policy.Caller{}, apperr.ErrUnauthenticated
}

// SetCaller stores caller on c the way Middleware does. Handler tests use it
// to skip token handling.
func SetCaller(c echo.Context, caller policy.Caller) {
	c.Set(callerContextKey, caller)
	c.SetRequest(c.Request().WithContext(policy.WithCaller(c.Request().Context(), caller)))
}
