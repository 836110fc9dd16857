package auth

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// publicRoutes are matched on method and registered route path. Login and
// registration are public; every other API route needs a bearer token.
var publicRoutes = map[string]bool{
	http.MethodGet + " /health":          true,
	http.MethodGet + " /health/db":       true,
	http.MethodPost + " /api/v1/session": true,
	http.MethodPost + " /api/v1/users":   true,
}

// AuthSkipper returns true for requests that bypass authentication.
func AuthSkipper(c echo.Context) bool {
	return IsPublicRoute(c.Request().Method, c.Path())
}

// IsPublicRoute reports whether method and route path are public.
func IsPublicRoute(method, path string) bool {
	return publicRoutes[method+" "+path]
}
