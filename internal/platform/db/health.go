package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

const readinessTimeout = 3 * time.Second

// Readiness is the body of the database readiness endpoint. A reachable
// database with pending migrations is not ready.
type Readiness struct {
	Status  string    `json:"status"`
	Pending []int     `json:"pending_migrations,omitempty"`
	Pool    PoolUsage `json:"pool"`
}

// PoolUsage summarises the connection pool.
type PoolUsage struct {
	InUse    int32  `json:"in_use"`
	Idle     int32  `json:"idle"`
	Max      int32  `json:"max"`
	Acquires int64  `json:"acquires"`
	WaitTime string `json:"wait_time"`
}

func poolUsage(pool *pgxpool.Pool) PoolUsage {
	stat := pool.Stat()
	return PoolUsage{
		InUse:    stat.AcquiredConns(),
		Idle:     stat.IdleConns(),
		Max:      stat.MaxConns(),
		Acquires: stat.AcquireCount(),
		WaitTime: stat.AcquireDuration().String(),
	}
}

// assess turns a ping result and the migration table into a status code
// and body.
func assess(pingErr error, statuses []MigrationStatus, usage PoolUsage) (int, Readiness) {
	r := Readiness{Status: "ready", Pool: usage}
	if pingErr != nil {
		r.Status = "unavailable"
		return http.StatusServiceUnavailable, r
	}
	for _, st := range statuses {
		if !st.Applied {
			r.Pending = append(r.Pending, st.Version)
		}
	}
	if len(r.Pending) > 0 {
		r.Status = "migrations_pending"
		return http.StatusServiceUnavailable, r
	}
	return http.StatusOK, r
}

// ReadinessHandler pings the database and compares applied migrations with
// the ones migrator knows about. Failures are logged and never echoed to
// the caller.
func ReadinessHandler(pool *pgxpool.Pool, migrator *Migrator, logger zerolog.Logger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), readinessTimeout)
		defer cancel()

		var statuses []MigrationStatus
		err := pool.Ping(ctx)
		if err == nil {
			statuses, err = migrator.Status(ctx)
		}
		if err != nil {
			logger.Error().Err(err).Msg("database not ready")
		}

		code, body := assess(err, statuses, poolUsage(pool))
		return c.JSON(code, body)
	}
}
