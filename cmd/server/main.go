// Command notes-server starts the notes HTTP API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/notes-service/internal/cache"
	"github.com/and161185/notes-service/internal/config"
	"github.com/and161185/notes-service/internal/limiter"
	"github.com/and161185/notes-service/internal/migrate"
	"github.com/and161185/notes-service/internal/repository/postgres"
	httpserver "github.com/and161185/notes-service/internal/server/http"
	"github.com/and161185/notes-service/internal/service"
	"github.com/and161185/notes-service/internal/token"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// main loads configuration, runs migrations, and starts the HTTP server.
func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("config", zap.Error(err))
	}
	logger.Info("starting",
		zap.String("version", version),
		zap.String("buildDate", buildDate),
		zap.String("addr", cfg.Addr),
	)

	// Context with OS signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := migrate.Up(ctx, cfg.DatabaseDSN); err != nil {
		logger.Fatal("migrate up", zap.Error(err))
	}

	// DB pool
	db, err := postgres.New(ctx, cfg.DatabaseDSN)
	if err != nil {
		logger.Fatal("postgres pool", zap.Error(err))
	}
	defer db.Close()

	// Side cache
	sideCache, closeCache, err := buildCache(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("cache", zap.Error(err))
	}
	defer closeCache()

	// Repositories
	noteRepo := postgres.NewNoteRepo(db)
	userRepo := postgres.NewUserRepo(db)

	lim := limiter.NewPGWithQuerier(db.Pool, 15*time.Minute, 5, 15*time.Minute)

	// Services
	tokens := token.New([]byte(cfg.JWTKey), cfg.AccessTTL)
	authSvc := service.NewAuthService(userRepo, tokens, lim, cfg.StoreTimeout)
	noteSvc := service.NewNoteService(noteRepo, sideCache, logger, cfg.CacheTTL, cfg.CacheTimeout, cfg.StoreTimeout)

	// HTTP server
	handler := httpserver.New(authSvc, noteSvc, tokens, logger)
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           httpserver.Routes(handler, logger),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", cfg.Addr))
		errCh <- srv.ListenAndServe()
	}()

	// Wait for stop
	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
			_ = srv.Close()
		}
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}

	logger.Info("shutdown complete")
}

// buildCache picks the cache backend from config: Azure Entra ID, plain
// Redis, or a no-op when caching is disabled.
func buildCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (cache.Cache, func(), error) {
	if !cfg.CacheEnabled {
		logger.Info("cache disabled, reads always hit the store")
		return cache.Noop{}, func() {}, nil
	}

	var (
		r   *cache.Redis
		err error
	)
	if cfg.RedisUseEntraID {
		r, err = cache.NewEntraID(cfg.RedisAddr, cfg.RedisUsername)
		if err != nil {
			return nil, nil, err
		}
	} else {
		r = cache.New(cfg.RedisAddr)
	}

	pingCtx, cancel := context.WithTimeout(ctx, cfg.CacheTimeout)
	defer cancel()
	if err := r.Ping(pingCtx); err != nil {
		// Degraded start: the cache is advisory, the store is not.
		logger.Warn("redis unreachable at startup, continuing", zap.Error(err))
	}
	return r, func() { _ = r.Close() }, nil
}
