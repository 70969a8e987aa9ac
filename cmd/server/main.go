package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"clinica/internal/config"
	"clinica/internal/infra"
	"clinica/internal/repository"
	"clinica/internal/router"
	"clinica/internal/service"
	"clinica/internal/worker"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	// Structured logger: pretty in dev, JSON in prod
	if cfg.Env != "production" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	db, err := infra.NewDatabase(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}

	// Redis only backs the async queues; without it jobs run inline.
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = infra.NewRedis(cfg.RedisURL)
		if err != nil {
			log.Warn().Err(err).Msg("redis unavailable, async jobs disabled")
			rdb = nil
		}
	}

	metrics, err := infra.NewMetrics(nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to register metrics")
	}

	breaker := infra.NewCircuitBreaker(infra.CircuitBreakerConfig{
		Name:             "procedimiento_asignacion",
		FailureThreshold: cfg.ProcedureCBFailures,
		SuccessThreshold: 1,
		OpenTimeout:      time.Duration(cfg.ProcedureCBOpenSecs) * time.Second,
		IsFailure:        service.EsFalloProcedimiento,
		OnStateChange:    metrics.OnCircuitChange,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Worker handlers are wired here (composition root) so the pool has
	// access to every infrastructure dependency.
	timeout := cfg.StoreCallTimeout()
	compraRepo := repository.NewCompraRepository(db, timeout)
	if rdb != nil {
		worker.StartWorkerPool(ctx, rdb, cfg.WorkerPoolSize, worker.WorkerHandlers{
			UsoDescuento: worker.NewUsoDescuentoWorker(repository.NewReglaDescuentoRepository(db, timeout)),
			Email:        worker.NewEmailWorker(infra.NewMailer(cfg)),
		})
	}
	scheduler := worker.StartReconciliacionCron(ctx, worker.ReconciliacionConfig{
		CompraRepo: compraRepo,
		Metrics:    metrics,
		RDB:        rdb,
		Intervalo:  time.Duration(cfg.ReconciliacionMinutos) * time.Minute,
	})
	defer scheduler.Stop()

	r := router.New(cfg, router.Deps{
		DB:      db,
		RDB:     rdb,
		Breaker: breaker,
		Metrics: metrics,
		Stop:    ctx.Done(),
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown on SIGINT / SIGTERM
	go func() {
		log.Info().Msgf("clinica backend listening on :%d", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down server…")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	log.Info().Msg("server exited")
}
