package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/taskmanager/taskmanager-go/internal/config"
	"github.com/taskmanager/taskmanager-go/internal/handler"
	"github.com/taskmanager/taskmanager-go/internal/middleware"
	"github.com/taskmanager/taskmanager-go/internal/repository"
	"github.com/taskmanager/taskmanager-go/internal/repository/boltstore"
	"github.com/taskmanager/taskmanager-go/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// openStores returns the user and task stores for the configured driver along
// with a closer for the underlying database.
func openStores(cfg config.Config) (service.UserStore, service.TaskStore, io.Closer, error) {
	switch cfg.StorageDriver {
	case config.DriverBolt:
		db, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, nil, nil, err
		}
		slog.Info("using embedded store", "path", cfg.BoltPath)
		return db.Users(), db.Tasks(), db, nil
	default:
		db, err := repository.NewDB(cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		if err := repository.Migrate(db); err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		slog.Info("using mysql store")
		return repository.NewUserRepository(db), repository.NewTaskRepository(db), db, nil
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	users, tasks, closer, err := openStores(cfg)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	router := handler.NewRouter(handler.RouterDeps{
		Users:       service.NewUserService(users, cfg.JWTSecret, cfg.JWTExpiry),
		Tasks:       service.NewTaskService(tasks),
		AuthLimiter: middleware.NewRateLimiter(ctx, cfg.AuthRateLimit, cfg.AuthRateBurst),
		Logger:      logger,
		TrustProxy:  cfg.TrustProxy,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "port", cfg.Port, "env", cfg.Env, "storage", cfg.StorageDriver)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced shutdown: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
