// Package main implements the entry point for the AromaMatch API server,
// which serves the fragrance catalog and generates note profiles for new
// fragrances through a recovery-wrapped background task pipeline.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aromatch/aromatch-api/internal/api"
	apimiddleware "github.com/aromatch/aromatch-api/internal/api/middleware"
	"github.com/aromatch/aromatch-api/internal/config"
	"github.com/aromatch/aromatch-api/internal/events"
	"github.com/aromatch/aromatch-api/internal/platform/gemini"
	"github.com/aromatch/aromatch-api/internal/platform/logger"
	"github.com/aromatch/aromatch-api/internal/platform/postgres"
	"github.com/aromatch/aromatch-api/internal/recovery"
	"github.com/aromatch/aromatch-api/internal/service/auth"
	"github.com/aromatch/aromatch-api/internal/task"
)

// shutdownTimeout bounds how long the server waits for in-flight requests
// during graceful shutdown.
const shutdownTimeout = 15 * time.Second

// backfillBatchSize caps how many profile-less fragrances are enqueued at
// startup.
const backfillBatchSize = 100

func main() {
	if err := run(); err != nil {
		log.Fatalf("server exited with error: %v", err)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	appLogger := logger.Setup(cfg.Server)
	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Server.LogLevel,
		"log_format", cfg.Server.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := postgres.Open(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := postgres.Migrate(ctx, db, appLogger); err != nil {
		return err
	}

	// Stores.
	taskStore := postgres.NewTaskStore(db, appLogger)
	deadLetterStore := postgres.NewDeadLetterStore(db, appLogger)
	errorLogStore := postgres.NewErrorLogStore(db, appLogger)
	fragranceStore := postgres.NewFragranceStore(db, appLogger)

	// Recovery subsystem.
	registry := prometheus.NewRegistry()
	metrics := recovery.NewMetrics()
	metrics.MustRegister(registry)

	emitter := events.NewInMemoryAlertEmitter(appLogger)
	emitter.RegisterHandler(events.NewLoggingAlertHandler(appLogger))

	policy := recovery.NewRecoveryPolicy(
		recovery.DefaultPolicyConfig(),
		emitter,
		recovery.SystemClock(),
		appLogger,
	)

	manager := recovery.NewManager(
		recoveryManagerConfig(cfg.Recovery),
		taskStore,
		deadLetterStore,
		policy,
		appLogger,
		recovery.WithMetrics(metrics),
		recovery.WithErrorLog(errorLogStore),
	)

	// Task pipeline.
	generator, err := gemini.NewNoteProfileGenerator(ctx, appLogger, cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create note profile generator: %w", err)
	}

	taskRegistry := task.NewRegistry()
	taskRegistry.Register(
		task.TaskTypeNoteProfileGeneration,
		task.NewNoteProfileGenerationFactory(fragranceStore, generator, appLogger),
	)

	runner := task.NewRunner(taskStore, manager, taskRegistry, task.RunnerConfig{
		WorkerCount:            cfg.Task.WorkerCount,
		QueueSize:              cfg.Task.QueueSize,
		StuckTaskAge:           cfg.Task.StuckTaskAge,
		StuckTaskCheckInterval: cfg.Task.StuckTaskInterval,
		MaintenanceInterval:    cfg.Recovery.MaintenanceInterval,
	}, appLogger)

	if err := runner.Start(); err != nil {
		return fmt.Errorf("failed to start task runner: %w", err)
	}
	defer runner.Stop()

	if err := backfillNoteProfiles(ctx, fragranceStore, generator, runner, appLogger); err != nil {
		// A failed backfill is not fatal; the fragrances are retried on the
		// next restart.
		appLogger.Warn("note profile backfill failed", "error", err)
	}

	// HTTP surface.
	jwtService, err := auth.NewJWTService(cfg.Auth, appLogger)
	if err != nil {
		return fmt.Errorf("failed to create JWT service: %w", err)
	}

	router := api.NewRouter(api.RouterDeps{
		AuthHandler: api.NewAuthHandler(
			jwtService,
			auth.NewBcryptVerifier(),
			cfg.Auth,
			appLogger,
		),
		AdminHandler:    api.NewAdminHandler(manager, deadLetterStore, errorLogStore, runner, appLogger),
		Authenticate:    apimiddleware.NewAuthMiddleware(jwtService, appLogger).Authenticate,
		MetricsRegistry: registry,
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("server stopped")
	return nil
}

// recoveryManagerConfig maps the flat recovery configuration onto the
// manager's nested config.
func recoveryManagerConfig(cfg config.RecoveryConfig) recovery.ManagerConfig {
	return recovery.ManagerConfig{
		Retry: recovery.RetryConfig{
			MaxRetries:         cfg.MaxRetries,
			BaseDelay:          cfg.BaseDelay,
			MaxDelay:           cfg.MaxDelay,
			ExponentialBackoff: true,
			JitterFactor:       cfg.JitterFactor,
		},
		Breaker: recovery.BreakerConfig{
			FailureThreshold: cfg.BreakerFailureThreshold,
			Timeout:          cfg.BreakerTimeout,
			MonitoringPeriod: cfg.BreakerMonitoringPeriod,
			ResetTimeout:     cfg.BreakerResetTimeout,
		},
		DefaultResource:  "gemini",
		DeadLetterMaxAge: cfg.DeadLetterMaxAge,
		StatsRetention:   cfg.StatsRetention,
	}
}

// backfillNoteProfiles enqueues generation tasks for fragrances that have
// no note profile yet, e.g. after imports or dropped tasks.
func backfillNoteProfiles(
	ctx context.Context,
	fragrances *postgres.FragranceStore,
	generator *gemini.NoteProfileGenerator,
	runner *task.Runner,
	logger *slog.Logger,
) error {
	missing, err := fragrances.ListFragrancesWithoutProfile(ctx, backfillBatchSize)
	if err != nil {
		return err
	}
	if len(missing) == 0 {
		return nil
	}

	submitted := 0
	for _, fragrance := range missing {
		t, err := task.NewNoteProfileGenerationTask(fragrance.ID, fragrances, generator, logger)
		if err != nil {
			return err
		}
		if err := runner.Submit(ctx, t); err != nil {
			logger.Warn("failed to submit backfill task",
				"fragrance_id", fragrance.ID,
				"error", err)
			continue
		}
		submitted++
	}

	logger.Info("note profile backfill submitted",
		"missing", len(missing),
		"submitted", submitted)
	return nil
}
