package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/Harshitk-cp/synapse/internal/api"
	"github.com/Harshitk-cp/synapse/internal/config"
	"github.com/Harshitk-cp/synapse/internal/neural"
	"github.com/Harshitk-cp/synapse/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newLogger(level string) *zap.Logger {
	cfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := cfg.Build()
	return logger
}

func main() {
	if err := config.Load(); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(config.LogLevel())
	defer func() { _ = logger.Sync() }()

	dbURL := config.DatabaseURL()
	if dbURL == "" {
		logger.Fatal("DATABASE_URL is required")
	}

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal("failed to ping database", zap.Error(err))
	}
	logger.Info("connected to database")

	if err := runMigrations(ctx, pool, config.MigrationsPath(), logger); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	// Optional readiness-gated training before the model is loaded, so a
	// first deployment with enough history comes up in neural mode.
	if config.AutoTrain() {
		autoTrain(ctx, pool, logger)
	}

	app, err := api.NewApp(pool, logger)
	if err != nil {
		logger.Fatal("failed to initialize app", zap.Error(err))
	}

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// runMigrations applies every .sql file in dir in lexical order. Migrations
// are written idempotent, so re-running on startup is safe.
func runMigrations(ctx context.Context, pool *pgxpool.Pool, dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Warn("migrations directory not found, skipping", zap.String("dir", dir))
			return nil
		}
		return err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		sql, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s: %w", name, err)
		}
		logger.Info("applied migration", zap.String("file", name))
	}
	return nil
}

// autoTrain trains the shared model from the first tenant that passes the
// readiness gate. Failures are logged, never fatal: the updater falls back
// to heuristic mode.
func autoTrain(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) {
	linkStore := store.NewLinkStore(pool)
	conceptStore := store.NewConceptStore(pool)
	pipeline := neural.NewPipeline(linkStore, conceptStore, logger)
	trainer := neural.NewTrainer(pipeline, logger)
	trainer.SetMinExamples(config.MinTrainingExamples())

	rows, err := pool.Query(ctx, `SELECT id FROM tenants ORDER BY created_at`)
	if err != nil {
		logger.Warn("auto-train: failed to list tenants", zap.Error(err))
		return
	}
	defer rows.Close()

	var tenantIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			logger.Warn("auto-train: failed to scan tenant", zap.Error(err))
			return
		}
		tenantIDs = append(tenantIDs, id)
	}

	for _, id := range tenantIDs {
		result, err := trainer.AutoTrain(ctx, id, config.ModelPath())
		if err != nil {
			logger.Warn("auto-train skipped",
				zap.String("tenant_id", id.String()),
				zap.Error(err))
			continue
		}
		logger.Info("auto-train complete",
			zap.String("tenant_id", id.String()),
			zap.Float64("best_val_loss", result.BestValLoss),
			zap.String("model_path", result.ModelPath))
		return
	}
}
