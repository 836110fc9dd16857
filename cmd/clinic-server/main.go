package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/clinicapi/clinic/internal/config"
	"github.com/clinicapi/clinic/internal/domain/admin"
	"github.com/clinicapi/clinic/internal/domain/clinical"
	"github.com/clinicapi/clinic/internal/domain/identity"
	"github.com/clinicapi/clinic/internal/domain/scheduling"
	"github.com/clinicapi/clinic/internal/platform/auth"
	"github.com/clinicapi/clinic/internal/platform/db"
	"github.com/clinicapi/clinic/internal/platform/guard"
	"github.com/clinicapi/clinic/internal/platform/middleware"
	"github.com/clinicapi/clinic/internal/platform/policy"
	"github.com/clinicapi/clinic/internal/platform/validation"
	"github.com/clinicapi/clinic/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "clinic-server",
		Short: "Clinic records API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				count, err := m.Up(ctx)
				if err != nil {
					return fmt.Errorf("migration failed: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
				return nil
			})
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			return withMigrator(dir, func(ctx context.Context, m *db.Migrator) error {
				statuses, err := m.Status(ctx)
				if err != nil {
					return fmt.Errorf("failed to get migration status: %w", err)
				}
				printStatus(cmd.OutOrStdout(), statuses)
				return nil
			})
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the embedded set")
	cmd.AddCommand(statusCmd)

	return cmd
}

// migrationFiles picks the migration source: dir when given, otherwise the
// set compiled into the binary.
func migrationFiles(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return migrations.FS
}

func withMigrator(dir string, fn func(ctx context.Context, m *db.Migrator) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	return fn(ctx, db.NewMigrator(pool, migrationFiles(dir)))
}

func printStatus(w io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
	for _, s := range statuses {
		status := "pending"
		appliedAt := ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}

// registrationRoles converts the configured role names. Config.Validate has
// already rejected unknown names.
func registrationRoles(names []string) ([]policy.Role, error) {
	roles := make([]policy.Role, 0, len(names))
	for _, n := range names {
		r, ok := policy.ParseRole(n)
		if !ok {
			return nil, fmt.Errorf("unknown registration role %q", n)
		}
		roles = append(roles, r)
	}
	return roles, nil
}

// ipExtractor decides where the client address comes from. With no trusted
// proxies it is the socket peer and forwarding headers are ignored.
// Otherwise X-Forwarded-For is read through the listed ranges only.
func ipExtractor(trusted []string) (echo.IPExtractor, error) {
	if len(trusted) == 0 {
		return echo.ExtractIPDirect(), nil
	}
	opts := []echo.TrustOption{
		echo.TrustLoopback(false),
		echo.TrustLinkLocal(false),
		echo.TrustPrivateNet(false),
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", cidr, err)
		}
		opts = append(opts, echo.TrustIPRange(ipNet))
	}
	return echo.ExtractIPFromXFFHeader(opts...), nil
}

func newLogger(dev bool) zerolog.Logger {
	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// loginThrottle shares lockouts through Redis when it is configured and keeps
// them in process otherwise.
func loginThrottle(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (auth.LoginThrottle, func(), error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, login lockouts are per instance")
		return auth.NewMemoryThrottle(cfg.LoginMaxAttempts, cfg.LoginLockout()), func() {}, nil
	}
	client, err := auth.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	return auth.NewRedisThrottle(client, cfg.LoginMaxAttempts, cfg.LoginLockout()), func() { client.Close() }, nil
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV") == "development")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	throttle, closeThrottle, err := loginThrottle(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closeThrottle()

	e, err := newServer(cfg, pool, throttle, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build server")
	}

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newServer(cfg *config.Config, pool *pgxpool.Pool, throttle auth.LoginThrottle, logger zerolog.Logger) (*echo.Echo, error) {
	tokens, err := auth.NewTokenService(auth.TokenConfig{
		Issuer:     cfg.JWTIssuer,
		Audience:   cfg.JWTAudience,
		SigningKey: []byte(cfg.JWTSigningKey),
		Lifetime:   cfg.TokenLifetime(),
		ClockSkew:  cfg.ClockSkew(),
	})
	if err != nil {
		return nil, err
	}
	roles, err := registrationRoles(cfg.RegistrationRoles)
	if err != nil {
		return nil, err
	}
	matrix, err := policy.DefaultMatrix()
	if err != nil {
		return nil, err
	}
	extractIP, err := ipExtractor(cfg.TrustedProxies)
	if err != nil {
		return nil, err
	}

	engine := policy.NewEngine(matrix, db.NewDirectory(pool), logger)
	tx := db.NewTransactor(pool)
	store := db.NewGuardStore(pool)
	scheduler := guard.NewScheduler(tx, store, logger)
	integrity := guard.NewIntegrity(tx, store, logger)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.IPExtractor = extractIP
	e.Validator = validation.New()
	e.HTTPErrorHandler = middleware.HTTPErrorHandler(logger)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.SecurityHeaders(cfg.IsProduction()))
	e.Use(middleware.BodyLimit("1M"))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(cfg.RequestTimeout()))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.ReadinessHandler(pool, db.NewMigrator(pool, migrations.FS), logger))

	api := e.Group("/api/v1")
	api.Use(auth.Middleware(tokens, auth.AuthSkipper, logger))

	limit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		IdleTTL:           10 * time.Minute,
	})

	adminSvc := admin.NewService(admin.NewUserRepo(pool), admin.NewDepartmentRepo(pool), engine, integrity, admin.Sessions{
		Tokens:            tokens,
		Throttle:          throttle,
		RegistrationRoles: roles,
	}, logger)
	admin.NewHandler(adminSvc, engine).RegisterRoutes(api, limit)

	identitySvc := identity.NewService(identity.NewDoctorRepo(pool), identity.NewPatientRepo(pool), engine, integrity, logger)
	identity.NewHandler(identitySvc, engine).RegisterRoutes(api)

	schedulingSvc := scheduling.NewService(scheduling.NewAppointmentRepo(pool), engine, scheduler, integrity, logger)
	scheduling.NewHandler(schedulingSvc, engine).RegisterRoutes(api)

	clinicalSvc := clinical.NewService(clinical.NewMedicalRecordRepo(pool), clinical.NewPrescriptionRepo(pool), engine, tx, integrity, logger)
	clinical.NewHandler(clinicalSvc, engine).RegisterRoutes(api)

	return e, nil
}
