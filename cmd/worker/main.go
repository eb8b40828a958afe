package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"storefront/internal/app"
	"storefront/internal/generation"
	"storefront/internal/infra"
)

type batchWorker struct {
	svc         *generation.Service
	logger      infra.Logger
	interval    time.Duration
	batchSize   int
	concurrency int
}

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.Component(infra.NewLogger(cfg.AppEnv, cfg.LogLevel), "worker")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()

	runner := infra.NewSQLRunner(pool, infra.Component(logger, "sql"))
	components, err := app.Build(ctx, cfg, runner, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to build generation service")
	}

	w := &batchWorker{
		svc:         components.Service,
		logger:      logger,
		interval:    cfg.WorkerPollInterval,
		batchSize:   cfg.WorkerBatchSize,
		concurrency: cfg.WorkerConcurrency,
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Msg("worker: stopped with error")
	}
	logger.Info().Msg("worker: stopped")
}

// Run finalizes pending batch jobs on every tick until ctx is cancelled. A
// full page triggers an immediate follow-up sweep.
func (w *batchWorker) Run(ctx context.Context) error {
	if w.interval <= 0 {
		w.interval = 30 * time.Second
	}
	w.logger.Info().Dur("interval", w.interval).Int("concurrency", w.concurrency).Msg("worker: started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		for {
			n, err := w.svc.SweepPending(ctx, w.batchSize, w.concurrency)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				w.logger.Error().Err(err).Msg("worker: sweep failed")
				break
			}
			if n > 0 {
				w.logger.Info().Int("finalized", n).Msg("worker: batch jobs finalized")
			}
			if n < w.batchSize {
				break
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
