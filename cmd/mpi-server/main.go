package main

import (
	"context"
	"errors"
	"fmt"
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

	"github.com/mpi/mpi/internal/config"
	"github.com/mpi/mpi/internal/domain/algorithm"
	"github.com/mpi/mpi/internal/domain/linkage"
	"github.com/mpi/mpi/internal/domain/mpi"
	"github.com/mpi/mpi/internal/platform/auth"
	"github.com/mpi/mpi/internal/platform/db"
	"github.com/mpi/mpi/internal/platform/hl7v2"
	"github.com/mpi/mpi/internal/platform/middleware"
	"github.com/mpi/mpi/internal/platform/sandbox"
	"github.com/mpi/mpi/internal/platform/telemetry"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "mpi-server",
		Short: "Master Patient Index record-linkage server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(algorithmCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the MPI API server",
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

			pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			count, err := db.NewMigrator(pool, dir).Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s).\n", count)
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

			pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(context.Background())
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

func algorithmCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "algorithm",
		Short: "Manage linkage algorithm configurations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "seed",
		Short: "Install the built-in default algorithm into an empty deployment",
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := connect()
			if err != nil {
				return err
			}
			defer pool.Close()

			svc := algorithm.NewService(algorithm.NewRepoPG(pool))
			created, err := svc.EnsureSeeded(context.Background())
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			if created {
				fmt.Printf("Seeded algorithm %q.\n", algorithm.DefaultLabel)
			} else {
				fmt.Println("Algorithms already present; nothing to do.")
			}
			return nil
		},
	})

	return cmd
}

// connect loads the configuration and opens the connection pool for the
// one-shot CLI commands.
func connect() (*pgxpool.Pool, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return db.NewPool(context.Background(), cfg.DatabaseURL, db.PoolConfig{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "mpi-cli",
	})
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		ApplicationName: "mpi-server",
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = httpErrorHandler(logger)

	tel := telemetry.NewProvider()
	tel.RegisterGaugeFunc("mpi_db_pool_total_conns",
		"Open connections in the pool.",
		func() float64 { return float64(pool.Stat().TotalConns()) })
	tel.RegisterGaugeFunc("mpi_db_pool_idle_conns",
		"Idle connections in the pool.",
		func() float64 { return float64(pool.Stat().IdleConns()) })
	tel.RegisterGaugeFunc("mpi_db_pool_acquired_conns",
		"Connections currently in use.",
		func() float64 { return float64(pool.Stat().AcquiredConns()) })

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(tel.HTTPMiddleware())
	e.Use(middleware.SecurityHeaders())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))
	e.Use(middleware.BodyLimit(cfg.BodyLimit, cfg.SeedBodyLimit))
	e.Use(middleware.RequestTimeout(time.Duration(cfg.RequestTimeoutSeconds) * time.Second))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
			Skipper:    auth.AuthSkipper,
		}))
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	// Infrastructure endpoints
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))
	e.GET("/metrics", tel.Handler())

	// API group. Routes live at the root so callers see the documented
	// paths (/link, /person/:ref, ...) without a version prefix.
	api := e.Group("")

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	api.Use(middleware.RateLimit(rateLimitCfg))

	// -- Domain wiring --

	mpiRepo := mpi.NewRepoPG(pool)
	mpiSvc := mpi.NewService(mpiRepo)
	mpi.NewHandler(mpiSvc).RegisterRoutes(api)

	algoSvc := algorithm.NewService(algorithm.NewRepoPG(pool))
	algorithm.NewHandler(algoSvc, cfg.TuningEnabled).RegisterRoutes(api)

	linkSvc := linkage.NewService(mpiRepo, algoSvc)
	linkSvc.SetMetrics(tel)
	linkage.NewHandler(linkSvc).RegisterRoutes(api)

	sandbox.NewHandler().RegisterRoutes(api)

	// An empty deployment gets the built-in default configuration, and the
	// configured default label must resolve before we accept traffic.
	created, err := algoSvc.EnsureSeeded(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("algorithm seeding failed")
	}
	if created {
		logger.Info().Str("label", algorithm.DefaultLabel).Msg("seeded built-in algorithm")
	}
	if _, err := algoSvc.Get(ctx, cfg.DefaultAlgorithm); err != nil {
		logger.Fatal().Err(err).Str("label", cfg.DefaultAlgorithm).
			Msg("configured default algorithm does not exist")
	}
	logger.Info().Str("default_algorithm", cfg.DefaultAlgorithm).Msg("algorithms ready")

	// HL7 v2 intake over MLLP, for deployments fed by registration streams.
	if cfg.MLLPAddr != "" {
		mllp := hl7v2.NewServer(cfg.MLLPAddr, mllpLinkHandler(linkSvc), logger)
		if err := mllp.Start(); err != nil {
			logger.Fatal().Err(err).Msg("mllp listener failed")
		}
		defer func() {
			if err := mllp.Stop(); err != nil {
				logger.Error().Err(err).Msg("mllp shutdown failed")
			}
		}()
	}

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// mllpLinkHandler links the PID demographics of every received message and
// acknowledges with the match grade. Failures turn into application-error
// ACKs so the sending interface engine can park and retry.
func mllpLinkHandler(linkSvc *linkage.Service) hl7v2.Handler {
	return func(ctx context.Context, msg *hl7v2.Message) []byte {
		rec, err := hl7v2.ExtractRecord(msg)
		if err != nil {
			return hl7v2.BuildAck(msg, hl7v2.AckError, err.Error())
		}
		req := &linkage.Request{Record: *rec}
		if msg.SendingFacility != "" {
			src := msg.SendingFacility
			req.ExternalPersonSource = &src
		}
		resp, err := linkSvc.Link(ctx, req)
		if err != nil {
			return hl7v2.BuildAck(msg, hl7v2.AckError, err.Error())
		}
		return hl7v2.BuildAck(msg, hl7v2.AckAccept, resp.MatchGrade)
	}
}

// httpErrorHandler renders every error as {"detail": message}. Handlers
// return echo.HTTPError values with client-safe messages; anything else is
// logged and reported as an opaque 500.
func httpErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		code := http.StatusInternalServerError
		detail := "internal server error"
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			detail = fmt.Sprintf("%v", he.Message)
		} else {
			logger.Error().Err(err).
				Str("method", c.Request().Method).
				Str("path", c.Request().URL.Path).
				Msg("unhandled error")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(code)
		} else {
			werr = c.JSON(code, map[string]string{"detail": detail})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("failed to write error response")
		}
	}
}
