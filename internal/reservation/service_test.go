package reservation

import (
	"context"
	"sync"
	"testing"

	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

// --- Fake ledger ---

// memLedger meniru semantik conditional update PGLedger: cek + tulis atomik
// di bawah satu lock, agregat parent ikut di-update.
type memProduct struct {
	stock    int
	active   bool
	variants map[string]int
}

type memLedger struct {
	mu       sync.Mutex
	products map[string]*memProduct
}

func newMemLedger() *memLedger {
	return &memLedger{products: map[string]*memProduct{}}
}

func (l *memLedger) addProduct(id string, stock int) {
	l.products[id] = &memProduct{stock: stock, active: stock > 0, variants: map[string]int{}}
}

func (l *memLedger) addVariant(productID, variantID string, stock int) {
	p := l.products[productID]
	p.variants[variantID] = stock
	l.reaggregate(p)
}

func (l *memLedger) reaggregate(p *memProduct) {
	if len(p.variants) == 0 {
		p.active = p.stock > 0
		return
	}
	sum := 0
	for _, s := range p.variants {
		sum += s
	}
	p.stock = sum
	p.active = sum > 0
}

func (l *memLedger) GetAvailable(ctx context.Context, productID, variantID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		return 0, stock.ErrNotFound
	}
	if variantID == "" {
		return p.stock, nil
	}
	s, ok := p.variants[variantID]
	if !ok {
		return 0, stock.ErrNotFound
	}
	return s, nil
}

func (l *memLedger) Adjust(ctx context.Context, productID, variantID string, delta int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		return 0, stock.ErrNotFound
	}
	if variantID == "" {
		if p.stock+delta < 0 {
			return p.stock, stock.ErrInsufficientStock
		}
		p.stock += delta
		p.active = p.stock > 0
		return p.stock, nil
	}
	s, ok := p.variants[variantID]
	if !ok {
		return 0, stock.ErrNotFound
	}
	if s+delta < 0 {
		return s, stock.ErrInsufficientStock
	}
	p.variants[variantID] = s + delta
	l.reaggregate(p)
	return s + delta, nil
}

func (l *memLedger) ReconcileAggregate(ctx context.Context, productID string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.products[productID]
	if !ok {
		return false, stock.ErrNotFound
	}
	if len(p.variants) == 0 {
		return false, nil
	}
	before, beforeActive := p.stock, p.active
	l.reaggregate(p)
	return p.stock != before || p.active != beforeActive, nil
}

func newService(l stock.Ledger) *Service {
	return &Service{Ledger: l, Log: zerolog.Nop(), ServiceName: "test"}
}

// --- Tests ---

func TestReserveAndRelease(t *testing.T) {
	ctx := context.Background()

	t.Run("reserve decrements and release restores", func(t *testing.T) {
		l := newMemLedger()
		l.addProduct("p1", 5)
		s := newService(l)

		res, err := s.Reserve(ctx, "p1", "", 5)
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, 0, res.Available)
		assert.False(t, l.products["p1"].active)

		avail, err := s.Release(ctx, "p1", "", 5)
		require.NoError(t, err)
		assert.Equal(t, 5, avail)
		assert.True(t, l.products["p1"].active)
	})

	t.Run("rejected when not enough stock", func(t *testing.T) {
		l := newMemLedger()
		l.addProduct("p1", 3)
		s := newService(l)

		res, err := s.Reserve(ctx, "p1", "", 4)
		require.NoError(t, err, "rejection is an outcome, not an error")
		assert.False(t, res.OK)
		assert.Equal(t, ReasonOutOfStock, res.Reason)
		assert.Equal(t, 3, res.Available)
		assert.Equal(t, 3, l.products["p1"].stock, "no partial effect")
	})

	t.Run("variant reserve updates parent aggregate", func(t *testing.T) {
		l := newMemLedger()
		l.addProduct("p1", 0)
		l.addVariant("p1", "vS", 3)
		l.addVariant("p1", "vM", 2)
		s := newService(l)

		res, err := s.Reserve(ctx, "p1", "vS", 2)
		require.NoError(t, err)
		assert.True(t, res.OK)
		assert.Equal(t, 1, res.Available)

		agg, err := l.GetAvailable(ctx, "p1", "")
		require.NoError(t, err)
		assert.Equal(t, 3, agg, "product stock = sum of variants")

		// kedua kalinya: sisa 1, minta 2 -> rejected, tidak ada perubahan
		res, err = s.Reserve(ctx, "p1", "vS", 2)
		require.NoError(t, err)
		assert.False(t, res.OK)
		assert.Equal(t, 1, res.Available)

		left, _ := l.GetAvailable(ctx, "p1", "vS")
		assert.Equal(t, 1, left)
	})

	t.Run("unknown product", func(t *testing.T) {
		s := newService(newMemLedger())
		_, err := s.Reserve(ctx, "nope", "", 1)
		assert.ErrorIs(t, err, stock.ErrNotFound)
	})

	t.Run("invalid qty", func(t *testing.T) {
		l := newMemLedger()
		l.addProduct("p1", 5)
		s := newService(l)

		_, err := s.Reserve(ctx, "p1", "", 0)
		assert.Error(t, err)
		_, err = s.Release(ctx, "p1", "", -1)
		assert.Error(t, err)
	})
}

func TestConcurrentReservesNeverOversell(t *testing.T) {
	ctx := context.Background()
	l := newMemLedger()
	l.addProduct("p1", 10)
	s := newService(l)

	var mu sync.Mutex
	okCount, rejCount := 0, 0

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			res, err := s.Reserve(ctx, "p1", "", 1)
			if err != nil {
				return err
			}
			mu.Lock()
			if res.OK {
				okCount++
			} else {
				rejCount++
			}
			mu.Unlock()
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 10, okCount, "exactly capacity/qty winners")
	assert.Equal(t, 10, rejCount)
	assert.Equal(t, 0, l.products["p1"].stock)
}

func TestMatchedReserveReleaseRestoresInitialStock(t *testing.T) {
	ctx := context.Background()
	l := newMemLedger()
	l.addProduct("p1", 7)
	s := newService(l)

	var g errgroup.Group
	for i := 0; i < 7; i++ {
		g.Go(func() error {
			res, err := s.Reserve(ctx, "p1", "", 1)
			if err != nil {
				return err
			}
			if !res.OK {
				return nil
			}
			_, err = s.Release(ctx, "p1", "", 1)
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 7, l.products["p1"].stock)
	assert.True(t, l.products["p1"].active)
}
