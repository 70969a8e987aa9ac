package worker

// reconciliacion_cron.go
// Periodic check for purchases that were validated but whose automatic
// assignment never completed. It only reports: the count feeds a gauge and a
// warning log so an administrator can assign manually. No retry happens here.

import (
	"context"
	"time"

	"clinica/internal/infra"
	"clinica/internal/repository"

	"github.com/go-co-op/gocron"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

type ReconciliacionConfig struct {
	CompraRepo repository.CompraRepository
	Metrics    *infra.Metrics
	RDB        *redis.Client // optional; DLQ sizes are logged when set
	Intervalo  time.Duration
}

// StartReconciliacionCron schedules the check and stops the scheduler when
// ctx is cancelled.
func StartReconciliacionCron(ctx context.Context, cfg ReconciliacionConfig) *gocron.Scheduler {
	if cfg.Intervalo <= 0 {
		cfg.Intervalo = 15 * time.Minute
	}
	scheduler := gocron.NewScheduler(time.UTC)
	if _, err := scheduler.Every(cfg.Intervalo).Do(func() { reconciliar(ctx, cfg) }); err != nil {
		log.Error().Err(err).Msg("reconciliacion_cron: failed to schedule job")
		return scheduler
	}
	scheduler.StartAsync()
	log.Info().Dur("intervalo", cfg.Intervalo).Msg("reconciliacion_cron: started")

	go func() {
		<-ctx.Done()
		scheduler.Stop()
		log.Info().Msg("reconciliacion_cron: shutting down")
	}()
	return scheduler
}

func reconciliar(ctx context.Context, cfg ReconciliacionConfig) {
	pendientes, err := cfg.CompraRepo.CountAsignacionPendiente(ctx)
	if err != nil {
		log.Error().Err(err).Msg("reconciliacion_cron: failed to count unassigned purchases")
		return
	}
	cfg.Metrics.SetComprasSinAsignar(pendientes)
	if pendientes > 0 {
		log.Warn().Int64("compras", pendientes).
			Msg("reconciliacion_cron: validated purchases still waiting for manual assignment")
	}

	if cfg.RDB == nil {
		return
	}
	lens, err := DLQLengths(ctx, cfg.RDB)
	if err != nil {
		log.Warn().Err(err).Msg("reconciliacion_cron: failed to read DLQ sizes")
		return
	}
	for q, n := range lens {
		if n > 0 {
			log.Warn().Str("queue", q).Int64("entries", n).Msg("reconciliacion_cron: dead-lettered jobs pending review")
		}
	}
}
