// Package main запускает HTTP-сервер сервиса обмена вещами.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/ecoshare/internal/config"
	"github.com/mmeshcher/ecoshare/internal/handler"
	"github.com/mmeshcher/ecoshare/internal/identity"
	"github.com/mmeshcher/ecoshare/internal/middleware"
	"github.com/mmeshcher/ecoshare/internal/repository"
	"github.com/mmeshcher/ecoshare/internal/service"
	"github.com/mmeshcher/ecoshare/internal/session"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	sugar := logger.Sugar()

	cfg, err := config.Parse()
	if err != nil {
		sugar.Fatalw("configuration error", "error", err.Error())
	}

	repo, err := newRepository(cfg, sugar)
	if err != nil {
		sugar.Fatalw("database initialization error", "error", err.Error())
	}

	svc := service.NewService(repo, service.RewardAmounts{
		Sharing:   cfg.SharingReward,
		Borrowing: cfg.BorrowingReward,
	}, logger)
	defer svc.Close()

	resolver, closeResolver, err := newCallerResolver(cfg, sugar)
	if err != nil {
		sugar.Fatalw("identity initialization error", "error", err.Error())
	}
	defer closeResolver()

	h := handler.NewHandler(svc, logger, middleware.NewAuthMiddleware(resolver))

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(cfg.AllowedOrigins),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		sugar.Infow("starting ecoshare server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown при отмене контекста (сигнал или ошибка в другой горутине)
	g.Go(func() error {
		<-ctx.Done()
		sugar.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		sugar.Info("server stopped gracefully")
		return nil
	})

	if err := g.Wait(); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newRepository(cfg *config.Config, sugar *zap.SugaredLogger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		sugar.Warn("DATABASE_URI is not set, data is kept in memory")
		return repository.NewMemoryRepository(), nil
	}
	return repository.NewPostgresRepository(cfg.DatabaseURI)
}

// newCallerResolver выбирает способ проверки токенов: сервис аутентификации, сессии в Redis
// или JWT платформы.
func newCallerResolver(cfg *config.Config, sugar *zap.SugaredLogger) (middleware.CallerResolver, func(), error) {
	noop := func() {}

	switch {
	case cfg.IdentityProviderAddress != "":
		sugar.Infow("resolving callers via identity provider", "addr", cfg.IdentityProviderAddress)
		return identity.NewClient(cfg.IdentityProviderAddress), noop, nil

	case cfg.RedisAddress != "":
		store := session.NewRedisStore(redis.NewClient(&redis.Options{Addr: cfg.RedisAddress}), cfg.SessionTTL)

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Ping(ctx); err != nil {
			_ = store.Close()
			return nil, noop, fmt.Errorf("ping redis: %w", err)
		}

		sugar.Infow("resolving callers via redis sessions", "addr", cfg.RedisAddress)
		return store, func() { _ = store.Close() }, nil

	default:
		if cfg.JWTSecret == "" {
			return nil, noop, fmt.Errorf("JWT_SECRET is required when no identity provider or redis is configured")
		}
		sugar.Info("resolving callers via platform JWT tokens")
		return middleware.NewJWTVerifier(cfg.JWTSecret), noop, nil
	}
}
