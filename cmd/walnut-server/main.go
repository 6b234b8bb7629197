package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/walnut/walnut/internal/config"
	"github.com/walnut/walnut/internal/domain/labreport"
	"github.com/walnut/walnut/internal/domain/medication"
	"github.com/walnut/walnut/internal/domain/patient"
	"github.com/walnut/walnut/internal/platform/auth"
	"github.com/walnut/walnut/internal/platform/db"
	"github.com/walnut/walnut/internal/platform/docparse"
	"github.com/walnut/walnut/internal/platform/middleware"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "walnut-server",
		Short: "Walnut health journal API server",
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
			fmt.Println("---------- ---------------------------------------- ---------- --------------------")
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

// newParser picks the document parsing provider. Returns nil when parsing
// is disabled; handlers respond 503 for parse endpoints in that case.
func newParser(cfg *config.Config) docparse.Parser {
	switch cfg.ParserProvider {
	case "anthropic":
		return docparse.NewAnthropicParser(cfg.AnthropicAPIKey)
	case "openai":
		return docparse.NewOpenAIParser(cfg.OpenAIAPIKey)
	default:
		return nil
	}
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

	mealTimes, err := medication.ParseMealTimes(cfg.BreakfastTime, cfg.LunchTime, cfg.DinnerTime, cfg.BedtimeTime)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid meal time configuration")
	}

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
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth
	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = "dev-secret-do-not-use-in-production"
		logger.Warn().Msg("JWT_SECRET not set, using development secret")
	}
	tokens := auth.NewTokenIssuer(jwtSecret, time.Duration(cfg.TokenTTLHours)*time.Hour)

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// API groups: public carries registration, api everything else.
	public := e.Group("/api/v1")
	api := e.Group("/api/v1")

	if cfg.IsDev() && cfg.DevPatientID != "" {
		devID, err := uuid.Parse(cfg.DevPatientID)
		if err != nil {
			logger.Fatal().Err(err).Msg("DEV_PATIENT_ID must be a UUID")
		}
		api.Use(auth.DevMiddleware(devID))
		logger.Warn().Str("patient_id", devID.String()).Msg("auth disabled, acting as fixed patient")
	} else {
		api.Use(auth.Middleware(tokens))
	}

	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	public.Use(middleware.RateLimit(rateLimitCfg))
	api.Use(middleware.RateLimit(rateLimitCfg))

	// Document parser
	parser := newParser(cfg)
	if parser == nil {
		logger.Info().Msg("document parsing disabled")
	} else {
		logger.Info().Str("provider", cfg.ParserProvider).Msg("document parsing enabled")
	}

	// Repositories and services
	patientRepo := patient.NewPatientRepoPG(pool)
	caseRepo := patient.NewMedicalCaseRepoPG(pool)
	patientSvc := patient.NewService(patientRepo, caseRepo)

	reportRepo := labreport.NewRepoPG(pool)
	reportSvc := labreport.NewService(reportRepo, patientSvc)

	medicationRepo := medication.NewRepoPG(pool)
	medicationSvc := medication.NewService(medicationRepo, patientSvc, mealTimes)

	// Handlers
	patient.NewHandler(patientSvc, tokens).RegisterRoutes(public, api)
	labreport.NewHandler(reportSvc, parser).RegisterRoutes(api)
	medication.NewHandler(medicationSvc, parser).RegisterRoutes(api)

	// Missed dose sweep
	sweeper := cron.New()
	_, err = sweeper.AddFunc(cfg.MissedSweepSpec, func() {
		swCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		marked, err := medicationSvc.SweepMissed(swCtx, time.Now())
		if err != nil {
			logger.Error().Err(err).Msg("missed dose sweep failed")
			return
		}
		if marked > 0 {
			logger.Info().Int("marked", marked).Msg("missed dose sweep complete")
		}
	})
	if err != nil {
		logger.Fatal().Err(err).Str("spec", cfg.MissedSweepSpec).Msg("invalid sweep schedule")
	}
	sweeper.Start()
	defer sweeper.Stop()

	// Start server
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("env", cfg.Env).Msg("server starting")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed")
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
