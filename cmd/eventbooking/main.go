// Package main запускает HTTP-сервер сервиса бронирования мероприятий.
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

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mmeshcher/event-booking/internal/code"
	"github.com/mmeshcher/event-booking/internal/config"
	"github.com/mmeshcher/event-booking/internal/events"
	"github.com/mmeshcher/event-booking/internal/handler"
	"github.com/mmeshcher/event-booking/internal/ledger"
	"github.com/mmeshcher/event-booking/internal/middleware"
	"github.com/mmeshcher/event-booking/internal/repository"
	"github.com/mmeshcher/event-booking/internal/service"
)

func main() {
	cfg, err := config.Parse()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger initialization error: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	sugar := logger.Sugar()

	if err := run(cfg, logger); err != nil {
		sugar.Fatalw("application terminated with error", "error", err)
	}
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, err
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func openRepository(cfg *config.Config, logger *zap.Logger) (service.Repository, error) {
	if cfg.DatabaseURI == "" {
		logger.Warn("DATABASE_URI is empty, using in-memory storage")
		return repository.NewMemoryRepository(), nil
	}
	repo, err := repository.NewPostgresRepository(cfg.DatabaseURI)
	if err != nil {
		return nil, err
	}
	return repo, nil
}

func openLedger(ctx context.Context, cfg *config.Config, repo service.Repository) (ledger.Ledger, func() error, error) {
	if cfg.RedisAddr == "" {
		return ledger.NewMemory(repo.SumActiveUnits), func() error { return nil }, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("redis ping: %w", err)
	}
	return ledger.NewRedis(client, repo.SumActiveUnits), client.Close, nil
}

func openPublisher(cfg *config.Config, logger *zap.Logger) (events.Publisher, error) {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL is empty, domain events are not published")
		return events.Nop{}, nil
	}
	return events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
}

func run(cfg *config.Config, logger *zap.Logger) error {
	sugar := logger.Sugar()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(cfg, logger)
	if err != nil {
		return fmt.Errorf("database initialization error: %w", err)
	}

	seats, closeLedger, err := openLedger(ctx, cfg, repo)
	if err != nil {
		_ = repo.Close()
		return fmt.Errorf("ledger initialization error: %w", err)
	}
	defer closeLedger()

	publisher, err := openPublisher(cfg, logger)
	if err != nil {
		_ = repo.Close()
		return fmt.Errorf("broker initialization error: %w", err)
	}
	defer publisher.Close()

	svc := service.NewService(repo,
		service.WithLedger(seats),
		service.WithCodeGenerator(code.NewGenerator(cfg.CodePrefix, code.WithAttempts(cfg.CodeAttempts))),
		service.WithPublisher(publisher),
		service.WithLogger(logger),
		service.WithPolicy(service.Policy{
			MaxUnits:      cfg.MaxUnits,
			CancelWindow:  cfg.CancelWindow,
			AutoConfirm:   cfg.AutoConfirm,
			CascadeCancel: cfg.CascadeCancel,
		}),
	)
	defer svc.Close()

	var limiter *middleware.RateLimiter
	if cfg.BookingRateLimit > 0 {
		limiter = middleware.NewRateLimiter(cfg.BookingRateLimit, cfg.BookingRateBurst)
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.JWTSecret)
	h := handler.NewHandler(svc, logger, authMiddleware, limiter)

	server := &http.Server{
		Addr:              cfg.RunAddress,
		Handler:           h.SetupRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		svc.RunLifecycleSweeps(ctx, cfg.SweepInterval)
		return nil
	})

	g.Go(func() error {
		sugar.Infow("starting event booking server", "addr", cfg.RunAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

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

	return g.Wait()
}
