package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"ccsa/internal/backup"
	"ccsa/internal/bootstrap"
	"ccsa/internal/config"
	"ccsa/internal/handlers"
	"ccsa/internal/middleware"

	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg := config.NewConfig()

	// создаём предустановленный регистратор zap
	newLogger := zap.NewProduction
	if cfg.Debug {
		newLogger = zap.NewDevelopment
	}
	logger, err := newLogger()
	if err != nil {
		panic(err)
	}

	// делаем регистратор SugaredLogger
	sugar := logger.Sugar()
	middleware.SetLogger(sugar) // передаём логгер в middleware
	//сброс буфера логгера
	defer func() {
		if err := logger.Sync(); err != nil && !errors.Is(err, syscall.EINVAL) {
			sugar.Errorw("Failed to sync logger", "error", err)
		}
	}()

	if err := cfg.Validate(); err != nil {
		sugar.Fatalw("invalid configuration", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, closeDB, err := bootstrap.Open(ctx, cfg, nil, sugar)
	if err != nil {
		sugar.Fatalw("failed to initialize application", "error", err)
	}
	defer func() {
		if err := closeDB(); err != nil {
			sugar.Errorw("failed to close database", "error", err)
		}
	}()

	scheduler, err := backup.NewScheduler(cfg.BackupSchedule, app.Backups, sugar)
	if err != nil {
		sugar.Fatalw("invalid backup schedule", "schedule", cfg.BackupSchedule, "error", err)
	}
	if scheduler != nil {
		scheduler.Start()
	}

	h := handlers.NewHandler(handlers.Services{
		Users:   app.Users,
		Site:    app.Site,
		Kernel:  app.Kernel,
		Contact: app.Contact,
		Backups: app.Backups,
	}, sugar, cfg)

	srv := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sugar.Infow(
		"Starting server",
		"addr", cfg.RunAddress,
	)

	sugar.Infow("Config",
		"SiteURL", cfg.SiteURL,
		"DataRoot", cfg.DataRoot,
		"Debug", cfg.Debug,
		"EmailBackend", cfg.EmailBackend,
		"BackupSchedule", cfg.BackupSchedule,
	)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		sugar.Infow("Shutting down server")
	case err := <-errCh:
		if err != nil {
			sugar.Errorw("Server failed", "error", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		sugar.Errorw("Server shutdown failed", "error", err)
	}
	if scheduler != nil {
		scheduler.Stop(shutdownCtx)
	}
}
