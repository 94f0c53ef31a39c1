package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bedtrack/bedtrack/internal/config"
	"github.com/bedtrack/bedtrack/internal/domain/bed"
	"github.com/bedtrack/bedtrack/internal/domain/bedrequest"
	"github.com/bedtrack/bedtrack/internal/platform/auth"
	"github.com/bedtrack/bedtrack/internal/platform/db"
	"github.com/bedtrack/bedtrack/internal/platform/middleware"
	"github.com/bedtrack/bedtrack/internal/platform/realtime"
	"github.com/bedtrack/bedtrack/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "bedtrack-server",
		Short: "Hospital bed tracking API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(sweepCmd())
	rootCmd.AddCommand(capacityCmd())

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

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			pool, _, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, migrations.FS).Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printMigrationStatus(cmd.OutOrStdout(), statuses)
			return nil
		},
	})

	return cmd
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

// sweepCmd runs a single expiry pass, for cron-driven deployments that
// disable the in-process sweeper.
func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Expire lapsed bed reservations once",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			logger := newLogger(os.Getenv("ENV"))
			pool, cfg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(ctx, cfg, pool, realtime.Nop{}, logger)
			if err != nil {
				return err
			}
			sweeper := bedrequest.NewSweeper(a.requests, cfg.SweepInterval, logger)
			if a.locker != nil {
				sweeper.SetLocker(a.locker)
			}
			res := sweeper.SweepOnce(ctx)
			if res.Skipped {
				fmt.Fprintln(cmd.OutOrStdout(), "Another sweeper holds the lock; nothing done.")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "expired=%d already_resolved=%d failed=%d\n",
				res.Expired, res.Resolved, res.Failed)
			if res.Failed > 0 {
				return fmt.Errorf("%d reservation(s) failed to expire", res.Failed)
			}
			return nil
		},
	}
}

func capacityCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "capacity",
		Short: "Manage ward bed capacity",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "sync",
		Short: "Create or remove beds to match the configured ward capacity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			logger := newLogger(os.Getenv("ENV"))
			pool, cfg, err := connect(ctx)
			if err != nil {
				return err
			}
			defer pool.Close()

			a, err := newApp(ctx, cfg, pool, realtime.Nop{}, logger)
			if err != nil {
				return err
			}
			target := a.settings.Current().WardCapacity
			if len(target) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No ward capacity configured.")
				return nil
			}
			report, err := a.beds.ReconcileCapacity(ctx, auth.System, target)
			if err != nil {
				return err
			}
			printReconcileReport(cmd.OutOrStdout(), report)
			return nil
		},
	})

	return cmd
}

func printReconcileReport(w io.Writer, r *bed.ReconcileReport) {
	wards := map[string]struct{}{}
	for ward := range r.Created {
		wards[ward] = struct{}{}
	}
	for ward := range r.Removed {
		wards[ward] = struct{}{}
	}
	for ward := range r.Skipped {
		wards[ward] = struct{}{}
	}
	names := make([]string, 0, len(wards))
	for ward := range wards {
		names = append(names, ward)
	}
	sort.Strings(names)

	fmt.Fprintf(w, "%-24s %-8s %-8s %s\n", "WARD", "CREATED", "REMOVED", "SKIPPED")
	for _, ward := range names {
		fmt.Fprintf(w, "%-24s %-8d %-8d %d\n", ward, len(r.Created[ward]), len(r.Removed[ward]), r.Skipped[ward])
	}
}

func newLogger(env string) zerolog.Logger {
	if env == "development" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func authMiddleware(cfg *config.Config) echo.MiddlewareFunc {
	if cfg.ResolvedAuthMode() == config.AuthModeDevelopment {
		return auth.DevAuthMiddleware()
	}
	var key []byte
	if cfg.AuthSigningKey != "" {
		key = []byte(cfg.AuthSigningKey)
	}
	return auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: key,
	})
}

func runServer() error {
	logger := newLogger(os.Getenv("ENV"))

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	pool, cfg, err := connect(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	hub := realtime.NewHub(logger)
	pub, closeTransports, err := newTransports(ctx, cfg, hub, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect realtime transports")
	}
	defer closeTransports()

	a, err := newApp(ctx, cfg, pool, pub, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise services")
	}
	if a.redis != nil {
		defer a.redis.Close()
	}

	sweeper := bedrequest.NewSweeper(a.requests, cfg.SweepInterval, logger)
	if a.locker != nil {
		sweeper.SetLocker(a.locker)
	}
	sweeper.Start(ctx)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID", "X-Dev-User", "X-Dev-Role", "X-Dev-Ward"},
	}))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/health/db", db.HealthHandler(pool, a.healthChecks()...))

	e.GET("/ws", realtime.NewHandler(hub, cfg.CORSOrigins).HandleConnect, authMiddleware(cfg))

	apiV1 := e.Group("/api/v1",
		middleware.RateLimit(middleware.RateLimitConfig{RequestsPerSecond: cfg.RateLimitRPS, BurstSize: cfg.RateLimitBurst}),
		authMiddleware(cfg),
	)
	a.registerRoutes(apiV1)

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("auth_mode", cfg.ResolvedAuthMode()).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	sweeper.Stop()
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
