package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

var (
	// ErrDuplicateSession: unique constraint payment_session_id kena. Bukan
	// failure — ini outcome normal dari trigger kedua yang datang belakangan.
	ErrDuplicateSession = errors.New("payment session already settled")

	// ErrConflict: constraint lain gagal saat insert. Retryable dengan payload
	// yang sama, karena insert-nya idempotent by constraint.
	ErrConflict = errors.New("settlement conflict")
)

// Store menulis Order + seluruh OrderItem dalam SATU transaksi. Keunikan
// payment_session_id WAJIB dijaga oleh store (unique index), bukan oleh cek
// aplikasi — dua attempt bisa in-flight bersamaan di koneksi berbeda.
type Store interface {
	InsertOrder(ctx context.Context, o orders.Order, items []orders.OrderItem) error
	GetBySession(ctx context.Context, sessionID string) (orders.Order, []orders.OrderItem, error)
}

type Item struct {
	ProductID  string
	VariantID  string // "" = tanpa variant
	Qty        int
	PriceCents int // snapshot harga dari cart, bukan harga product sekarang
}

type Payload struct {
	UserID        string
	PaymentMethod string
	Items         []Item
}

type Coordinator struct {
	Store       Store
	Producer    *kafkax.Producer // shop.order.settled
	Log         zerolog.Logger
	ServiceName string
}

// Settle membuat tepat satu order per payment session, berapa kali pun dan
// dari trigger mana pun (webhook provider / redirect client / consumer)
// dipanggil. Stok TIDAK dikurangi di sini — reservasi sudah terjadi waktu
// item masuk cart.
func (c *Coordinator) Settle(ctx context.Context, sessionID string, p Payload) (orders.Order, bool, error) {
	if sessionID == "" {
		return orders.Order{}, false, fmt.Errorf("settle: empty session id")
	}
	if len(p.Items) == 0 {
		return orders.Order{}, false, fmt.Errorf("settle: session %s: no items", sessionID)
	}

	total := 0
	for _, it := range p.Items {
		if it.Qty <= 0 {
			return orders.Order{}, false, fmt.Errorf("settle: session %s: invalid qty for product %s", sessionID, it.ProductID)
		}
		if it.PriceCents < 0 {
			return orders.Order{}, false, fmt.Errorf("settle: session %s: negative price for product %s", sessionID, it.ProductID)
		}
		total += it.PriceCents * it.Qty
	}

	now := time.Now().UTC()
	o := orders.Order{
		ID:               uuid.NewString(),
		PaymentSessionID: &sessionID,
		UserID:           p.UserID,
		Status:           orders.StatusConfirmed,
		PaymentStatus:    orders.PaymentPaid,
		TotalCents:       total,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if p.PaymentMethod != "" {
		pm := p.PaymentMethod
		o.PaymentMethod = &pm
	}

	items := make([]orders.OrderItem, 0, len(p.Items))
	for _, it := range p.Items {
		oi := orders.OrderItem{
			ID:         uuid.NewString(),
			OrderID:    o.ID,
			ProductID:  it.ProductID,
			Qty:        it.Qty,
			PriceCents: it.PriceCents,
		}
		if it.VariantID != "" {
			v := it.VariantID
			oi.VariantID = &v
		}
		items = append(items, oi)
	}

	err := c.Store.InsertOrder(ctx, o, items)
	if errors.Is(err, ErrDuplicateSession) {
		existing, _, gerr := c.Store.GetBySession(ctx, sessionID)
		if gerr != nil {
			return orders.Order{}, false, fmt.Errorf("settle: session %s settled but fetch failed: %w", sessionID, gerr)
		}
		return existing, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}

	c.Log.Info().Str("order_id", o.ID).Str("session_id", sessionID).
		Int("total_cents", total).Int("items", len(items)).Msg("order settled")
	c.publishSettled(o, sessionID, len(items))
	return o, true, nil
}

func (c *Coordinator) publishSettled(o orders.Order, sessionID string, itemCount int) {
	if c.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventOrderSettled,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      c.ServiceName,
		CorrelationID: sessionID,
		Payload: kafkax.MustMarshal(orders.OrderSettledPayload{
			OrderID: o.ID, SessionID: sessionID, UserID: o.UserID,
			TotalCents: o.TotalCents, ItemCount: itemCount,
		}),
	}
	c.Producer.Publish(orders.PartitionKey(sessionID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventOrderSettled)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
