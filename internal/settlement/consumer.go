package settlement

import (
	"context"
	"fmt"

	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/metrics"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Consumer adalah trigger asinkron: notifikasi payment provider masuk lewat
// topic shop.payment.completed dengan delivery at-least-once. Redelivery dan
// race dengan trigger HTTP aman, Settle idempotent by constraint.
type Consumer struct {
	Coordinator *Coordinator
	Redis       *redis.Client
	Log         zerolog.Logger
}

// HandlePaymentCompleted dipasang sebagai handler consumer.
func (c *Consumer) HandlePaymentCompleted(ctx context.Context, m kafkago.Message) error {
	var env orders.Envelope
	if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
		return err
	}
	if env.EventType != orders.EventPaymentCompleted {
		return nil // ignore
	}

	// dedup via Redis (fast path saja; kebenaran tetap di unique constraint)
	dkey := fmt.Sprintf(redisx.KeyDedup, "settler", env.EventID)
	if exists, _ := redisx.Exists(ctx, c.Redis, dkey); exists {
		return nil
	}

	p, err := kafkax.UnwrapPayload[orders.PaymentCompletedPayload](env.Payload)
	if err != nil {
		return err
	}

	items := make([]Item, 0, len(p.Items))
	for _, it := range p.Items {
		items = append(items, Item{
			ProductID: it.ProductID, VariantID: it.VariantID,
			Qty: it.Qty, PriceCents: it.PriceCents,
		})
	}

	_, created, err := c.Coordinator.Settle(ctx, p.SessionID, Payload{
		UserID:        p.UserID,
		PaymentMethod: p.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		metrics.Settlements.WithLabelValues("consumer", "error").Inc()
		return err // jangan commit offset; redelivery aman
	}
	if created {
		metrics.Settlements.WithLabelValues("consumer", "created").Inc()
	} else {
		metrics.Settlements.WithLabelValues("consumer", "already_settled").Inc()
		c.Log.Debug().Str("session_id", p.SessionID).Msg("redelivery, already settled")
	}

	_ = c.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
