package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"melodex/internal/server/api"
	"melodex/internal/server/audio"
	"melodex/internal/server/config"
	"melodex/internal/server/database"
	"melodex/internal/server/notify"
	"melodex/internal/server/service"
	"melodex/internal/server/storage"
)

func main() {
	// Structured logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Load config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	slog.Info("configuration loaded",
		"port", cfg.Port,
		"storage_path", cfg.StoragePath,
		"upload_workers", cfg.UploadWorkers,
		"normalize_flac", cfg.NormalizeFLAC,
		"lockout_schedule", config.ScheduleString(cfg.LockoutSchedule),
	)

	// Connect to database
	ctx := context.Background()
	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	if err := db.RunMigrations(ctx); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("database migrations complete")

	// Initialize blob storage
	store := storage.NewFileSystemStore(cfg.StoragePath)
	if err := store.EnsureDir(); err != nil {
		slog.Error("failed to initialize storage", "error", err)
		os.Exit(1)
	}
	slog.Info("file storage initialized", "path", cfg.StoragePath)

	// Repositories
	tracks := database.NewCatalogRepository(db)
	users := database.NewUserRepository(db)
	attempts := database.NewLockoutStore(db)

	// Services
	hub := notify.NewHub()
	guard := service.NewLockoutGuard(attempts, cfg.LockoutSchedule)
	auth := service.NewAuth(users, guard, []byte(cfg.SessionSecret))
	normalizer := audio.NewFFmpegNormalizer(audio.NormalizeParams{
		Enabled:             cfg.NormalizeFLAC,
		TargetSampleRate:    cfg.TargetSampleRate,
		TargetBitsPerSample: cfg.TargetBitsPerSample,
		FFmpegPath:          cfg.FFmpegPath,
	})
	ingest := service.NewIngestor(tracks, store, normalizer, hub, cfg.UploadWorkers)
	catalog := service.NewCatalog(tracks, store, hub, cfg.PageSize)

	// Start orphan sweeper
	sweepCtx, sweepCancel := context.WithCancel(context.Background())
	sweeper := storage.NewSweeper(tracks, store, cfg.SweepInterval)
	sweeper.Start(sweepCtx)

	// Setup HTTP router
	handler := api.NewHandler(auth, catalog, ingest, hub, db)
	e := api.SetupRouter(handler, auth, cfg)

	// Start server in a goroutine
	go func() {
		addr := fmt.Sprintf(":%s", cfg.Port)
		slog.Info("starting server", "addr", addr, "base_url", cfg.BaseURL)
		if err := e.Start(addr); err != nil {
			slog.Info("server stopped", "reason", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	slog.Info("shutting down", "signal", sig)

	// Stop accepting new requests, finish in-flight with 30s timeout
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	// Let scheduled ingest tasks commit before the process exits
	ingest.Wait()

	// Stop the sweeper
	sweepCancel()
	sweeper.Wait()

	slog.Info("server exited cleanly")
}
