package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/courseflow/admission/internal/allocator"
	"github.com/courseflow/admission/internal/config"
	"github.com/courseflow/admission/internal/infrastructure/postgres"
	"github.com/courseflow/admission/internal/infrastructure/redis"
	"github.com/courseflow/admission/internal/logger"
	"github.com/courseflow/admission/internal/service"
	"github.com/courseflow/admission/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}
	logger.Init()
	log := logger.Logger.With().
		Str("service", "courseflow-admission").
		Str("env", cfg.AppEnv).
		Logger()

	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()
		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}
	repo := postgres.New(dbPool)

	queue := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()
		if err := queue.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("redis ping failed")
		}
		log.Info().Msg("redis connected")
	}

	svc := service.NewAdmissionService(queue, repo)
	h := rest.NewHandler(svc)

	httpHandler := rest.NewRouter(rest.RouterDeps{
		Queue:    queue,
		Repo:     repo,
		Handler:  h,
		RLLimit:  cfg.RLLimit,
		RLWindow: cfg.RLWindow,
	})

	pool := allocator.NewPool(queue, repo, allocator.Config{
		EmptyBackoff: cfg.AllocatorEmptyBackoff,
		ErrorBackoff: cfg.AllocatorErrorBackoff,
		ItemTimeout:  cfg.AllocatorItemTimeout,
	}, cfg.AllocatorPollInterval)
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.Run(rootCtx)
	}()

	repo.StartGaugeRefresh(rootCtx, cfg.AllocatorPollInterval)

	if cfg.OutboxEnabled {
		if err := repo.StartOutboxPublisher(rootCtx, cfg.RabbitURL, cfg.RabbitExchange); err != nil {
			log.Warn().Err(err).Msg("outbox publisher not started; staged events stay pending")
		} else {
			log.Info().Msg("outbox publisher started")
		}
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	select {
	case <-poolDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("allocator pool did not drain before shutdown deadline")
	}
	log.Info().Msg("shutdown complete")
}
