package auth

import (
	"net/http"
	"testing"
)

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		method, path string
		want         bool
	}{
		{http.MethodGet, "/health", true},
		{http.MethodGet, "/health/db", true},
		{http.MethodPost, "/api/v1/session", true},
		{http.MethodPost, "/api/v1/users", true},
		{http.MethodGet, "/api/v1/users", false},
		{http.MethodGet, "/api/v1/users/:id", false},
		{http.MethodDelete, "/api/v1/departments/:id", false},
		{http.MethodGet, "/api/v1/session", false},
	}
	for _, tt := range tests {
		if got := IsPublicRoute(tt.method, tt.path); got != tt.want {
			t.Errorf("IsPublicRoute(%s %s) = %v, want %v", tt.method, tt.path, got, tt.want)
		}
	}
}
