package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/catursari/go-stock-settlement.git/internal/config"
	"github.com/catursari/go-stock-settlement.git/internal/httpx"
	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/logx"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/postgres"
	"github.com/catursari/go-stock-settlement.git/internal/redisx"
	"github.com/catursari/go-stock-settlement.git/internal/reservation"
	"github.com/catursari/go-stock-settlement.git/internal/settlement"
	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	log := logx.New(cfg.ServiceName + "-api")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers per topic
	pReserve := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReserved, 1024, log)
	pReserve.Start(ctx)
	pReject := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockRejected, 1024, log)
	pReject.Start(ctx)
	pRelease := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicStockReleased, 1024, log)
	pRelease.Start(ctx)
	pSettled := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderSettled, 1024, log)
	pSettled.Start(ctx)

	// wiring
	ledger := &stock.PGLedger{DB: db}
	resv := &reservation.Service{
		Ledger:          ledger,
		ProducerReserve: pReserve,
		ProducerReject:  pReject,
		ProducerRelease: pRelease,
		Log:             log,
		ServiceName:     cfg.ServiceName + "-api",
	}
	coord := &settlement.Coordinator{
		Store:       &settlement.PGStore{DB: db},
		Producer:    pSettled,
		Log:         log,
		ServiceName: cfg.ServiceName + "-api",
	}

	router := httpx.NewRouter()
	h := &httpx.Handler{
		Reservations: resv,
		Settlements:  coord,
		Catalog:      &orders.Catalog{DB: db},
		Ledger:       ledger,
		Redis:        rdb,
		Log:          log,
	}
	h.Register(router)

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("listen")
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info().Msg("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range []*kafkax.Producer{pReserve, pReject, pRelease, pSettled} {
		p.Close() // tutup inbox -> flush & close writer
	}
	cancel() // stop producer loop
	for _, p := range []*kafkax.Producer{pReserve, pReject, pRelease, pSettled} {
		p.WaitClosed() // drain
	}
}
