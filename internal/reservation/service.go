package reservation

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/metrics"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

const ReasonOutOfStock = "OUT_OF_STOCK"

// Result dibedakan eksplisit (OK / rejected + alasan) supaya caller tidak
// perlu menebak dari error; OUT_OF_STOCK itu outcome normal, bukan crash.
type Result struct {
	OK        bool
	Reason    string
	Available int
}

type Service struct {
	Ledger          stock.Ledger
	ProducerReserve *kafkax.Producer // shop.stock.reserved
	ProducerReject  *kafkax.Producer // shop.stock.rejected
	ProducerRelease *kafkax.Producer // shop.stock.released
	Log             zerolog.Logger
	ServiceName     string
}

// Reserve menahan qty unit untuk satu cart line. TIDAK idempotent: cart
// lifecycle wajib memanggil tepat sekali per transisi add/remove.
func (s *Service) Reserve(ctx context.Context, productID, variantID string, qty int) (Result, error) {
	if qty <= 0 {
		return Result{}, fmt.Errorf("reserve: invalid qty %d", qty)
	}

	avail, err := s.Ledger.Adjust(ctx, productID, variantID, -qty)
	if errors.Is(err, stock.ErrInsufficientStock) {
		metrics.Reservations.WithLabelValues("reserve", "rejected").Inc()
		s.publishRejected(productID, variantID, qty, avail)
		return Result{OK: false, Reason: ReasonOutOfStock, Available: avail}, nil
	}
	if err != nil {
		metrics.Reservations.WithLabelValues("reserve", "error").Inc()
		return Result{}, err
	}

	metrics.Reservations.WithLabelValues("reserve", "ok").Inc()
	s.publishMoved(s.ProducerReserve, orders.EventStockReserved, productID, variantID, qty, avail)
	return Result{OK: true, Available: avail}, nil
}

// Release mengembalikan qty unit. Selalu sukses untuk target yang ada;
// release tanpa reservasi adalah bug caller, ledger tidak bisa membedakannya
// dari release sah (tidak ada reservation row — lihat DESIGN.md).
func (s *Service) Release(ctx context.Context, productID, variantID string, qty int) (int, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("release: invalid qty %d", qty)
	}

	avail, err := s.Ledger.Adjust(ctx, productID, variantID, +qty)
	if err != nil {
		metrics.Reservations.WithLabelValues("release", "error").Inc()
		return 0, err
	}
	metrics.Reservations.WithLabelValues("release", "ok").Inc()
	s.publishMoved(s.ProducerRelease, orders.EventStockReleased, productID, variantID, qty, avail)
	return avail, nil
}

func (s *Service) publishMoved(p *kafkax.Producer, eventType, productID, variantID string, qty, avail int) {
	if p == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: productID,
		Payload: kafkax.MustMarshal(orders.StockMovedPayload{
			ProductID: productID, VariantID: variantID, Qty: qty, Available: avail,
		}),
	}
	p.Publish(orders.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}

func (s *Service) publishRejected(productID, variantID string, qty, avail int) {
	if s.ProducerReject == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventStockRejected,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      s.ServiceName,
		CorrelationID: productID,
		Payload: kafkax.MustMarshal(orders.StockRejectedPayload{
			ProductID: productID, VariantID: variantID,
			Required: qty, Available: avail, Reason: ReasonOutOfStock,
		}),
	}
	s.ProducerReject.Publish(orders.PartitionKey(productID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventStockRejected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
