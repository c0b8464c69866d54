package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/carelink/carelink/internal/config"
	"github.com/carelink/carelink/internal/domain/capability"
	"github.com/carelink/carelink/internal/domain/grant"
	"github.com/carelink/carelink/internal/domain/notification"
	"github.com/carelink/carelink/internal/domain/subject"
	"github.com/carelink/carelink/internal/platform/auth"
	"github.com/carelink/carelink/internal/platform/db"
	"github.com/carelink/carelink/internal/platform/middleware"
	"github.com/carelink/carelink/internal/platform/push"
	"github.com/carelink/carelink/internal/platform/stream"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "carelink-server",
		Short: "Consent-gated patient records access server",
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

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}

			fmt.Printf("Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			fmt.Printf("%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Printf("%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "./migrations", "Path to migrations directory")
	cmd.AddCommand(statusCmd)

	return cmd
}

// signingKeys returns the auth and capability HMAC keys. Development mode
// falls back to fixed keys so the server starts without configuration;
// Validate rejects empty keys everywhere else.
func signingKeys(cfg *config.Config) (authKey, capKey []byte) {
	authKey = []byte(cfg.AuthSecret)
	capKey = []byte(cfg.CapabilityKey)
	if cfg.IsDev() {
		if len(authKey) == 0 {
			authKey = []byte("carelink-dev-auth-secret")
		}
		if len(capKey) == 0 {
			capKey = []byte("carelink-dev-capability-key")
		}
	}
	return authKey, capKey
}

// sweeper is any background cleanup that deletes lapsed rows.
type sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// runSweeps runs every sweeper once per interval until ctx is cancelled.
func runSweeps(ctx context.Context, interval time.Duration, logger zerolog.Logger, sweepers map[string]sweeper) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for name, s := range sweepers {
				n, err := s.SweepExpired(ctx)
				if err != nil {
					logger.Error().Err(err).Str("sweeper", name).Msg("sweep failed")
					continue
				}
				if n > 0 {
					logger.Info().Str("sweeper", name).Int("deleted", n).Msg("swept expired rows")
				}
			}
		}
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" || os.Getenv("ENV") == "" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}
	authKey, capKey := signingKeys(cfg)

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.RequestTimeout(30 * time.Second))

	// Health check
	e.GET("/health", func(c echo.Context) error {
		if err := db.Healthy(c.Request().Context(), pool, 2*time.Second); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status": "degraded",
				"error":  err.Error(),
			})
		}
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})

	// API groups. public carries the capability resolution endpoints, which
	// authenticate by token possession rather than bearer credential.
	public := e.Group("/api/v1")
	api := e.Group("/api/v1")
	api.Use(auth.JWTMiddleware(auth.JWTConfig{SigningKey: authKey}))

	// Live connection registry and push delivery
	registry := stream.NewRegistry(cfg.HeartbeatInterval, logger)
	var pushSender notification.PushSender
	if cfg.PushURL != "" {
		pushSender = push.NewHTTPSender(cfg.PushURL, cfg.PushTimeout, logger)
	} else {
		logger.Warn().Msg("PUSH_URL not set; push delivery disabled")
	}

	// Domain services
	subjectSvc := subject.NewService(subject.NewRepoPG(pool))
	notifSvc := notification.NewService(notification.NewRepoPG(pool), subjectSvc, registry, pushSender, cfg.PushTimeout, logger)
	grantSvc := grant.NewService(grant.NewRepoPG(pool), subjectSvc, notifSvc, cfg.GrantWindow, logger)
	capSvc := capability.NewService(capability.NewRepoPG(pool), subjectSvc, capKey, cfg.CapabilityTTL, logger)

	// Consent gate
	gate := auth.RequireGrant(grantSvc, auth.GateConfig{
		RequesterRoles: []string{auth.RoleClinician},
		Extractors: []auth.SubjectExtractor{
			auth.SubjectFromPath("id"),
			auth.SubjectFromQuery("subject_id"),
		},
		Logger: logger,
	})
	gateByContact := auth.RequireGrantByContact(grantSvc, subjectSvc, "contact", logger, auth.RoleClinician)

	// Routes
	subject.NewHandler(subjectSvc).RegisterRoutes(api, gate, gateByContact)
	grant.NewHandler(grantSvc).RegisterRoutes(api)
	capability.NewHandler(capSvc).RegisterRoutes(api, public)
	notification.NewHandler(notifSvc).RegisterRoutes(api)
	stream.NewHandler(registry, notifSvc).RegisterRoutes(api)

	// Background loops
	bgCtx, cancelBg := context.WithCancel(ctx)
	defer cancelBg()
	go registry.Run(bgCtx)
	go runSweeps(bgCtx, cfg.SweepInterval, logger, map[string]sweeper{
		"consent_sessions":  grantSvc,
		"capability_tokens": capSvc,
	})

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down")
	cancelBg()
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("forced shutdown")
		return err
	}
	return nil
}
