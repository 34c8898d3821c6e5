package settlement

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// --- Fake store ---

// memStore meniru unique constraint payment_session_id: insert kedua untuk
// session yang sama gagal ErrDuplicateSession, atomik di bawah satu lock.
type memStore struct {
	mu        sync.Mutex
	bySession map[string]orders.Order
	items     map[string][]orders.OrderItem // key: order id
	failWith  error
}

func newMemStore() *memStore {
	return &memStore{
		bySession: map[string]orders.Order{},
		items:     map[string][]orders.OrderItem{},
	}
}

func (s *memStore) InsertOrder(ctx context.Context, o orders.Order, items []orders.OrderItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWith != nil {
		return s.failWith
	}
	sid := *o.PaymentSessionID
	if _, exists := s.bySession[sid]; exists {
		return ErrDuplicateSession
	}
	s.bySession[sid] = o
	s.items[o.ID] = items
	return nil
}

func (s *memStore) GetBySession(ctx context.Context, sessionID string) (orders.Order, []orders.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.bySession[sessionID]
	if !ok {
		return orders.Order{}, nil, fmt.Errorf("session %s: order not found", sessionID)
	}
	return o, s.items[o.ID], nil
}

func newCoordinator(st Store) *Coordinator {
	return &Coordinator{Store: st, Log: zerolog.Nop(), ServiceName: "test"}
}

func payload() Payload {
	return Payload{
		UserID:        "u1",
		PaymentMethod: "bank_transfer",
		Items: []Item{
			{ProductID: "p1", VariantID: "v1", Qty: 2, PriceCents: 1550},
			{ProductID: "p2", Qty: 1, PriceCents: 3000},
		},
	}
}

// --- Tests ---

func TestSettleCreatesOrderOnce(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newCoordinator(st)

	o, created, err := c.Settle(ctx, "sess_123", payload())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, orders.StatusConfirmed, o.Status)
	assert.Equal(t, orders.PaymentPaid, o.PaymentStatus)
	assert.Equal(t, 2*1550+3000, o.TotalCents)
	require.NotNil(t, o.PaymentSessionID)
	assert.Equal(t, "sess_123", *o.PaymentSessionID)
	require.NotNil(t, o.PaymentMethod)
	assert.Equal(t, "bank_transfer", *o.PaymentMethod)
	assert.Len(t, st.items[o.ID], 2, "order never exists without its items")

	// trigger kedua: hasil yang sama, bukan error, bukan order baru
	o2, created2, err := c.Settle(ctx, "sess_123", payload())
	require.NoError(t, err)
	assert.False(t, created2)
	assert.Equal(t, o.ID, o2.ID)
	assert.Len(t, st.bySession, 1)
	assert.Len(t, st.items[o.ID], 2, "items not doubled by redelivery")
}

func TestSettleConcurrentSameSession(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newCoordinator(st)

	const n = 8
	var mu sync.Mutex
	createdCount := 0
	ids := map[string]bool{}

	var g errgroup.Group
	for i := 0; i < n; i++ {
		g.Go(func() error {
			o, created, err := c.Settle(ctx, "sess_race", payload())
			if err != nil {
				return err
			}
			mu.Lock()
			if created {
				createdCount++
			}
			ids[o.ID] = true
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, createdCount, "exactly one caller wins the insert")
	assert.Len(t, ids, 1, "everyone sees the same order")
	assert.Len(t, st.bySession, 1)

	o := st.bySession["sess_race"]
	assert.Len(t, st.items[o.ID], 2, "item count matches payload exactly once")
}

func TestSettleDifferentSessions(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newCoordinator(st)

	_, created1, err := c.Settle(ctx, "sess_a", payload())
	require.NoError(t, err)
	_, created2, err := c.Settle(ctx, "sess_b", payload())
	require.NoError(t, err)

	assert.True(t, created1)
	assert.True(t, created2)
	assert.Len(t, st.bySession, 2)
}

func TestSettleValidation(t *testing.T) {
	ctx := context.Background()
	c := newCoordinator(newMemStore())

	_, _, err := c.Settle(ctx, "", payload())
	assert.Error(t, err)

	_, _, err = c.Settle(ctx, "sess_1", Payload{UserID: "u1"})
	assert.Error(t, err, "no items")

	p := payload()
	p.Items[0].Qty = 0
	_, _, err = c.Settle(ctx, "sess_1", p)
	assert.Error(t, err, "invalid qty")

	p = payload()
	p.Items[1].PriceCents = -3000
	_, _, err = c.Settle(ctx, "sess_1", p)
	assert.Error(t, err, "negative price snapshot must not settle")

	// validasi gagal sebelum menyentuh store
	st := newMemStore()
	c = newCoordinator(st)
	_, _, _ = c.Settle(ctx, "sess_1", Payload{})
	assert.Empty(t, st.bySession)
}

func TestSettleStoreErrorIsRetryable(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	st.failWith = fmt.Errorf("%w: order_items_product_id_fkey", ErrConflict)
	c := newCoordinator(st)

	_, _, err := c.Settle(ctx, "sess_err", payload())
	require.ErrorIs(t, err, ErrConflict)

	// retry dengan payload sama setelah store pulih -> sukses, tetap satu order
	st.failWith = nil
	o, created, err := c.Settle(ctx, "sess_err", payload())
	require.NoError(t, err)
	assert.True(t, created)
	assert.Len(t, st.items[o.ID], 2)
}

func TestSettlePaymentMethodOptional(t *testing.T) {
	ctx := context.Background()
	st := newMemStore()
	c := newCoordinator(st)

	p := payload()
	p.PaymentMethod = ""
	o, _, err := c.Settle(ctx, "sess_nopm", p)
	require.NoError(t, err)
	assert.Nil(t, o.PaymentMethod)
}
