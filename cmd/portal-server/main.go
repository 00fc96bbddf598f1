package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"github.com/medcenter/portal/internal/config"
	"github.com/medcenter/portal/internal/domain/booking"
	"github.com/medcenter/portal/internal/domain/doctors"
	"github.com/medcenter/portal/internal/domain/scheduling"
	"github.com/medcenter/portal/internal/platform/auth"
	"github.com/medcenter/portal/internal/platform/blobstore"
	"github.com/medcenter/portal/internal/platform/civil"
	"github.com/medcenter/portal/internal/platform/db"
	"github.com/medcenter/portal/internal/platform/metrics"
	"github.com/medcenter/portal/internal/platform/middleware"
	"github.com/medcenter/portal/internal/platform/notification"
	"github.com/medcenter/portal/internal/platform/pubsub"
	"github.com/medcenter/portal/internal/platform/tracing"
	"github.com/medcenter/portal/internal/platform/validate"
	"github.com/medcenter/portal/internal/platform/websocket"
)

const (
	version = "0.1.0"

	// defaultBodyLimit covers every JSON body the API accepts.
	defaultBodyLimit int64 = 64 << 10
	avatarRoute            = "/api/v1/doctors/:id/avatar"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "portal-server",
		Short: "Hospital portal slot reservation server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(slotsCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the portal API server",
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

	// migrate up
	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(cmd.Context())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(upCmd)

	// migrate status
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := openMigrator(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Path to migrations directory (default MIGRATIONS_DIR)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func openMigrator(cmd *cobra.Command) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = cfg.MigrationsDir
	}

	pool, err := db.NewPool(cmd.Context(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	return db.NewMigrator(pool, dir), pool.Close, nil
}

func printMigrationStatus(w io.Writer, statuses []db.MigrationStatus) {
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

// slotsCmd prints the read path for one doctor and day: the generated
// times, the occupied ones and what a patient would be offered.
func slotsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Show generated, occupied and free slot times for a doctor's day",
		RunE: func(cmd *cobra.Command, args []string) error {
			rawDoctor, _ := cmd.Flags().GetString("doctor")
			rawDate, _ := cmd.Flags().GetString("date")
			doctorID, err := uuid.Parse(rawDoctor)
			if err != nil {
				return fmt.Errorf("--doctor must be a UUID: %w", err)
			}
			date, err := civil.ParseDate(rawDate)
			if err != nil {
				return fmt.Errorf("--date: %w", err)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			logger := zerolog.Nop()
			directory, err := doctorDirectory(pool)
			if err != nil {
				return err
			}
			schedule := scheduling.NewService(scheduling.NewScheduleRepoPG(pool), directory, cfg.SlotStep(), logger)
			bookings := booking.NewService(booking.NewLedgerPG(pool), schedule, directory, logger)

			generated, err := schedule.AvailableSlotTimes(ctx, doctorID, date)
			if err != nil {
				return err
			}
			occupied, err := bookings.OccupiedSlotTimes(ctx, doctorID, date)
			if err != nil {
				return err
			}
			printSlots(cmd.OutOrStdout(), date, generated, occupied)
			return nil
		},
	}
	cmd.Flags().String("doctor", "", "Doctor ID")
	cmd.Flags().String("date", "", "Day to inspect (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("doctor")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

// freeTimes returns generated minus occupied, keeping the generated order.
func freeTimes(generated, occupied []civil.Time) []civil.Time {
	taken := make(map[civil.Time]bool, len(occupied))
	for _, t := range occupied {
		taken[t] = true
	}
	free := make([]civil.Time, 0, len(generated))
	for _, t := range generated {
		if !taken[t] {
			free = append(free, t)
		}
	}
	return free
}

func joinTimes(times []civil.Time) string {
	if len(times) == 0 {
		return "-"
	}
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = t.String()
	}
	return strings.Join(parts, " ")
}

func printSlots(w io.Writer, date civil.Date, generated, occupied []civil.Time) {
	fmt.Fprintf(w, "%s (%s)\n", date, date.Weekday())
	fmt.Fprintf(w, "%-10s %s\n", "generated", joinTimes(generated))
	fmt.Fprintf(w, "%-10s %s\n", "occupied", joinTimes(occupied))
	fmt.Fprintf(w, "%-10s %s\n", "free", joinTimes(freeTimes(generated, occupied)))
}

// doctorDirectory merges the embedded roster with published profiles.
func doctorDirectory(pool *pgxpool.Pool) (*doctors.MergedDirectory, error) {
	roster, err := doctors.NewRosterDirectory()
	if err != nil {
		return nil, fmt.Errorf("load doctor roster: %w", err)
	}
	return doctors.NewMergedDirectory(roster, doctors.NewProfileDirectory(doctors.NewProfileRepoPG(pool))), nil
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == "development" {
		return auth.DevAuthMiddleware()
	}
	jwtCfg := auth.JWTConfig{
		Issuer:   cfg.AuthIssuer,
		Audience: cfg.AuthAudience,
		JWKSURL:  cfg.AuthJWKSURL,
		Skipper:  auth.AuthSkipper,
	}
	if cfg.AuthJWTSecret != "" {
		jwtCfg.SigningKey = []byte(cfg.AuthJWTSecret)
	}
	return auth.JWTMiddleware(jwtCfg)
}

func rateLimitConfig(cfg *config.Config) middleware.RateLimitConfig {
	rl := middleware.DefaultRateLimitConfig()
	if cfg.RateLimitRPS > 0 {
		rl.RequestsPerSecond = cfg.RateLimitRPS
	}
	if cfg.RateLimitBurst > 0 {
		rl.BurstSize = cfg.RateLimitBurst
	}
	return rl
}

func bodyLimitOverrides() map[string]int64 {
	// multipart framing on top of the image itself
	return map[string]int64{avatarRoute: blobstore.AvatarPolicy.MaxSize + 64<<10}
}

func runServer() error {
	// Config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	loc, _ := cfg.Location()

	logger := newLogger(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Database
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	registry := metrics.NewRegistry()

	// Tracing
	shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		ServiceName:    "portal-server",
		ServiceVersion: version,
		Environment:    cfg.Env,
		Endpoint:       cfg.OTLPEndpoint,
		SampleRatio:    cfg.TraceSampling,
	}, logger)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}

	// Occupancy push
	hub := websocket.NewHub(websocket.WithLogger(logger), websocket.WithClientGauge(registry.SetWSClients))
	var events websocket.EventPublisher = hub
	probes := map[string]db.Probe{}
	if cfg.RedisURL != "" {
		client, err := pubsub.Connect(ctx, cfg.RedisURL, 5, 2*time.Second)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to connect to redis")
		}
		defer client.Close()

		bridge := pubsub.NewBridge(client, hub, logger)
		go func() {
			if err := bridge.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis bridge stopped")
			}
		}()
		events = bridge
		probes["redis"] = bridge.Ping
		logger.Info().Msg("slot events fan out through redis")
	}

	// Domain services
	directory, err := doctorDirectory(pool)
	if err != nil {
		return err
	}
	doctorSvc := doctors.NewService(directory, doctors.NewProfileRepoPG(pool), blobstore.NewPGStore(pool, blobstore.AvatarPolicy), logger)
	scheduleSvc := scheduling.NewService(scheduling.NewScheduleRepoPG(pool), directory, cfg.SlotStep(), logger)
	notifier := notification.NewManager(notification.LogSender{Logger: logger}, notification.NewTemplateEngine(), logger)
	bookingSvc := booking.NewService(booking.NewLedgerPG(pool), scheduleSvc, directory, logger,
		booking.WithEvents(events),
		booking.WithNotifier(notifier),
		booking.WithMetrics(registry),
		booking.WithLocation(loc),
		booking.WithReserveTimeout(cfg.ReserveTimeout),
	)

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = validate.New()

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(tracing.Middleware(otel.GetTracerProvider()))
	e.Use(middleware.Logger(logger))
	e.Use(registry.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "X-Request-ID", booking.HeaderIdempotencyKey},
		ExposeHeaders: []string{booking.HeaderReplayed, "Retry-After"},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(authMiddleware(cfg))
	e.Use(middleware.Audit(logger))

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": version,
		})
	})
	e.GET("/health/db", db.HealthHandler(pool, probes))
	e.GET("/metrics", registry.Handler())
	websocket.NewHandler(hub, cfg.CORSOrigins).RegisterRoutes(e)

	// API
	apiV1 := e.Group("/api/v1")
	apiV1.Use(middleware.RequestTimeout(cfg.RequestTimeout))
	apiV1.Use(middleware.RateLimit(rateLimitConfig(cfg)))
	apiV1.Use(middleware.BodyLimit(defaultBodyLimit, bodyLimitOverrides()))

	doctors.NewHandler(doctorSvc).RegisterRoutes(apiV1)
	scheduling.NewHandler(scheduleSvc).RegisterRoutes(apiV1)
	booking.NewHandler(bookingSvc).RegisterRoutes(apiV1)

	// Start server
	addr := ":" + cfg.Port
	go func() {
		logger.Info().
			Str("addr", addr).
			Str("auth_mode", cfg.ResolvedAuthMode()).
			Str("clinic_tz", loc.String()).
			Dur("slot_step", cfg.SlotStep()).
			Msg("starting portal server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("failed to flush traces")
	}
	logger.Info().Msg("server stopped")
	return nil
}
