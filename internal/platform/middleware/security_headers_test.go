package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
)

func runSecurityHeaders(t *testing.T, hsts bool, h echo.HandlerFunc) (*httptest.ResponseRecorder, error) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/medical-records", nil), rec)
	return rec, SecurityHeaders(hsts)(h)(c)
}

func TestSecurityHeaders_SetsAPIHeaders(t *testing.T) {
	rec, err := runSecurityHeaders(t, false, func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]string{
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"Referrer-Policy":         "no-referrer",
		"Cache-Control":           "no-store",
	}
	for header, v := range want {
		if got := rec.Header().Get(header); got != v {
			t.Errorf("header %s: got %q, want %q", header, got, v)
		}
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != "" {
		t.Errorf("expected no HSTS without TLS, got %q", got)
	}
}

func TestSecurityHeaders_HSTS(t *testing.T) {
	rec, err := runSecurityHeaders(t, true, func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := rec.Header().Get("Strict-Transport-Security"); got != hstsValue {
		t.Errorf("expected HSTS %q, got %q", hstsValue, got)
	}
}

func TestSecurityHeaders_PresentOnErrors(t *testing.T) {
	want := errors.New("handler failed")
	rec, err := runSecurityHeaders(t, false, func(c echo.Context) error {
		return want
	})
	if !errors.Is(err, want) {
		t.Fatalf("expected handler error, got %v", err)
	}
	if rec.Header().Get("Cache-Control") != "no-store" {
		t.Error("expected headers set before the handler runs")
	}
}
