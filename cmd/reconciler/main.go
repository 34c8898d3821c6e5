package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catursari/go-stock-settlement.git/internal/config"
	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/logx"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/postgres"
	"github.com/catursari/go-stock-settlement.git/internal/reconcile"
	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/joho/godotenv"
)

// Reconciler jalan sebagai cron/one-shot (RECONCILE_INTERVAL=0) atau loop
// dengan interval. Idempotent, aman dijalankan dobel.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-reconciler")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer db.Close()

	pCorrect := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicReconcileCorrected, 256, log)
	pCorrect.Start(ctx)

	job := &reconcile.Job{
		Store:          &reconcile.PGStore{DB: db},
		Ledger:         &stock.PGLedger{DB: db},
		Producer:       pCorrect,
		Log:            log,
		ServiceName:    cfg.ServiceName + "-reconciler",
		CartStaleAfter: cfg.CartStaleAfter,
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	run := func() {
		runCtx, runCancel := context.WithTimeout(ctx, 5*time.Minute)
		defer runCancel()
		if _, err := job.Run(runCtx); err != nil {
			log.Error().Err(err).Msg("reconcile run failed")
		}
	}

	run()
	if cfg.ReconcileInterval > 0 {
		t := time.NewTicker(cfg.ReconcileInterval)
		defer t.Stop()
	loop:
		for {
			select {
			case <-t.C:
				run()
			case <-sig:
				break loop
			}
		}
		log.Info().Msg("shutting down...")
	}

	pCorrect.Close()
	cancel()
	pCorrect.WaitClosed()
}
