package db

import (
	"errors"
	"net/http"
	"testing"
)

func TestAssess(t *testing.T) {
	applied := []MigrationStatus{{Version: 1, Applied: true}, {Version: 2, Applied: true}}
	behind := []MigrationStatus{{Version: 1, Applied: true}, {Version: 2}, {Version: 3}}

	tests := []struct {
		name     string
		pingErr  error
		statuses []MigrationStatus
		code     int
		status   string
		pending  int
	}{
		{"ready", nil, applied, http.StatusOK, "ready", 0},
		{"no migrations known", nil, nil, http.StatusOK, "ready", 0},
		{"pending migrations", nil, behind, http.StatusServiceUnavailable, "migrations_pending", 2},
		{"unreachable", errors.New("dial tcp: connection refused"), nil, http.StatusServiceUnavailable, "unavailable", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, r := assess(tt.pingErr, tt.statuses, PoolUsage{Max: 10})
			if code != tt.code || r.Status != tt.status {
				t.Errorf("got %d %q, want %d %q", code, r.Status, tt.code, tt.status)
			}
			if len(r.Pending) != tt.pending {
				t.Errorf("expected %d pending, got %v", tt.pending, r.Pending)
			}
			if r.Pool.Max != 10 {
				t.Errorf("expected pool usage to be reported, got %+v", r.Pool)
			}
		})
	}
}
