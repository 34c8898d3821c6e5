package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/catursari/go-stock-settlement.git/internal/config"
	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/logx"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/postgres"
	"github.com/catursari/go-stock-settlement.git/internal/redisx"
	"github.com/catursari/go-stock-settlement.git/internal/settlement"
	"github.com/joho/godotenv"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-settler")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Producer: order settled
	pSettled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderSettled, 1024, log)
	pSettled.Start(ctx)

	// Coordinator + consumer. Settle idempotent by constraint, jadi
	// redelivery dari topic maupun race dengan trigger HTTP aman.
	coord := &settlement.Coordinator{
		Store:       &settlement.PGStore{DB: db},
		Producer:    pSettled,
		Log:         log,
		ServiceName: cfg.ServiceName + "-settler",
	}
	svc := &settlement.Consumer{
		Coordinator: coord,
		Redis:       rdb,
		Log:         log,
	}

	group := getenv("SETTLER_GROUP", "settler-svc")
	workers := mustAtoi(os.Getenv("SETTLER_WORKERS"), "8")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicPaymentCompleted, workers, log)

	go func() {
		log.Info().Str("group", group).Str("topic", orders.TopicPaymentCompleted).
			Int("workers", workers).Msg("settler consumer started")
		if err := cons.Start(ctx, svc.HandlePaymentCompleted); err != nil {
			log.Error().Err(err).Msg("consumer exit")
			cancel()
		}
	}()

	// graceful shutdown
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down consumer...")
	pSettled.Close()
	cancel()
	time.Sleep(500 * time.Millisecond)
	pSettled.WaitClosed()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
