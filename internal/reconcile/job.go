package reconcile

import (
	"context"
	"sort"
	"time"

	kafkax "github.com/catursari/go-stock-settlement.git/internal/kafka"
	"github.com/catursari/go-stock-settlement.git/internal/metrics"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Store adalah akses read/repair reconciler ke relational store yang sama
// dengan request path. Semua operasi aman diulang.
type Store interface {
	// Session id non-null yang punya lebih dari satu order.
	DuplicateSessions(ctx context.Context) ([]string, error)
	OrdersBySession(ctx context.Context, sessionID string) ([]orders.Order, error)

	// MergeAndDelete menulis field hasil merge ke survivor lalu menghapus
	// item + order duplikat, satu transaksi per group.
	MergeAndDelete(ctx context.Context, survivor orders.Order, removeIDs []string) error

	// Product dengan variant yang stock agregatnya tidak sama dengan SUM(variant).
	MismatchedProducts(ctx context.Context) ([]string, error)

	// Cart line yang cart-nya hilang atau tidak tersentuh sejak cutoff.
	StaleCartLines(ctx context.Context, cutoff time.Time) ([]orders.CartLine, error)
}

type Report struct {
	DuplicateGroups int
	OrdersRemoved   int
	StockCorrected  int
	OrphansFlagged  int
}

// Job menyatukan script-script repair lama (pencari duplicate order, stock
// sync) jadi satu proses idempotent yang bisa dijadwalkan. Job tidak pernah
// melempar InvariantViolation ke user path: semua koreksi di-log untuk audit.
type Job struct {
	Store          Store
	Ledger         stock.Ledger
	Producer       *kafkax.Producer // shop.reconcile.corrected
	Log            zerolog.Logger
	ServiceName    string
	CartStaleAfter time.Duration
}

func (j *Job) Run(ctx context.Context) (Report, error) {
	var rep Report

	groups, removed, err := j.HealDuplicateOrders(ctx)
	if err != nil {
		return rep, err
	}
	rep.DuplicateGroups, rep.OrdersRemoved = groups, removed

	corrected, err := j.HealStockMismatches(ctx)
	if err != nil {
		return rep, err
	}
	rep.StockCorrected = corrected

	orphans, err := j.FindOrphanReservations(ctx)
	if err != nil {
		return rep, err
	}
	rep.OrphansFlagged = len(orphans)

	j.Log.Info().
		Int("duplicate_groups", rep.DuplicateGroups).
		Int("orders_removed", rep.OrdersRemoved).
		Int("stock_corrected", rep.StockCorrected).
		Int("orphans_flagged", rep.OrphansFlagged).
		Msg("reconcile run done")
	return rep, nil
}

// FindDuplicateOrders mengembalikan group order yang share satu
// payment_session_id (count > 1), tanpa mengubah apa pun.
func (j *Job) FindDuplicateOrders(ctx context.Context) ([][]orders.Order, error) {
	sessions, err := j.Store.DuplicateSessions(ctx)
	if err != nil {
		return nil, err
	}
	var groups [][]orders.Order
	for _, sid := range sessions {
		list, err := j.Store.OrdersBySession(ctx, sid)
		if err != nil {
			return nil, err
		}
		if len(list) > 1 {
			groups = append(groups, list)
		}
	}
	return groups, nil
}

// HealDuplicateOrders: per group, keep survivor deterministik, merge field
// non-null yang beda, hapus sisanya. Run ulang langsung setelahnya harus
// menemukan nol group.
func (j *Job) HealDuplicateOrders(ctx context.Context) (groups, removed int, err error) {
	dups, err := j.FindDuplicateOrders(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, group := range dups {
		survivor, rest := PickSurvivor(group)
		MergeFields(&survivor, rest)

		removeIDs := make([]string, 0, len(rest))
		for _, o := range rest {
			removeIDs = append(removeIDs, o.ID)
		}
		if err := j.Store.MergeAndDelete(ctx, survivor, removeIDs); err != nil {
			return groups, removed, err
		}

		sid := ""
		if survivor.PaymentSessionID != nil {
			sid = *survivor.PaymentSessionID
		}
		groups++
		removed += len(removeIDs)
		metrics.ReconcileCorrections.WithLabelValues("duplicate_order").Inc()
		j.Log.Warn().Str("session_id", sid).Str("survivor", survivor.ID).
			Strs("removed", removeIDs).Msg("duplicate orders healed")
		j.publish(orders.ReconcileCorrectedPayload{
			Kind: "DUPLICATE_ORDER", SessionID: sid,
			Survivor: survivor.ID, Removed: len(removeIDs),
		}, sid)
	}
	return groups, removed, nil
}

// HealStockMismatches menjalankan ReconcileAggregate untuk tiap product yang
// agregatnya melenceng dari SUM(variant.stock).
func (j *Job) HealStockMismatches(ctx context.Context) (int, error) {
	ids, err := j.Store.MismatchedProducts(ctx)
	if err != nil {
		return 0, err
	}

	corrected := 0
	for _, pid := range ids {
		ok, err := j.Ledger.ReconcileAggregate(ctx, pid)
		if err != nil {
			return corrected, err
		}
		if !ok {
			continue // ada yang keburu membetulkan; tetap bukan error
		}
		corrected++
		metrics.ReconcileCorrections.WithLabelValues("stock_mismatch").Inc()
		j.Log.Warn().Str("product_id", pid).Msg("stock aggregate corrected")
		j.publish(orders.ReconcileCorrectedPayload{Kind: "STOCK_MISMATCH", ProductID: pid}, pid)
	}
	return corrected, nil
}

// FindOrphanReservations: heuristik best-effort. Cart line yang cart-nya
// sudah basi menahan stok tanpa pemilik yang jelas — HANYA di-flag untuk
// review manual, tidak pernah di-release otomatis (salah release = oversell).
func (j *Job) FindOrphanReservations(ctx context.Context) ([]orders.CartLine, error) {
	staleAfter := j.CartStaleAfter
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	lines, err := j.Store.StaleCartLines(ctx, time.Now().Add(-staleAfter))
	if err != nil {
		return nil, err
	}

	for _, l := range lines {
		metrics.ReconcileCorrections.WithLabelValues("orphan_flagged").Inc()
		j.Log.Warn().Str("cart_id", l.CartID).Str("product_id", l.ProductID).
			Int("qty", l.Qty).Msg("possible orphan reservation, manual review")
		j.publish(orders.ReconcileCorrectedPayload{
			Kind: "ORPHAN_FLAGGED", ProductID: l.ProductID,
			Detail: "cart " + l.CartID + " stale, line holds stock",
		}, l.ProductID)
	}
	return lines, nil
}

// PickSurvivor: earliest created_at menang, seri -> id terkecil. Total order,
// supaya dua run paralel pun memilih survivor yang sama.
func PickSurvivor(group []orders.Order) (orders.Order, []orders.Order) {
	sorted := make([]orders.Order, len(group))
	copy(sorted, group)
	sort.Slice(sorted, func(i, k int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[k].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[k].CreatedAt)
		}
		return sorted[i].ID < sorted[k].ID
	})
	return sorted[0], sorted[1:]
}

// MergeFields menyalin field non-null yang hanya tercatat di duplikat
// (misalnya payment_method dari trigger satunya) ke survivor.
func MergeFields(survivor *orders.Order, dups []orders.Order) bool {
	changed := false
	for _, d := range dups {
		if survivor.PaymentMethod == nil && d.PaymentMethod != nil {
			pm := *d.PaymentMethod
			survivor.PaymentMethod = &pm
			changed = true
		}
	}
	return changed
}

func (j *Job) publish(p orders.ReconcileCorrectedPayload, key string) {
	if j.Producer == nil {
		return
	}
	ev := orders.Envelope{
		EventID:       uuid.NewString(),
		EventType:     orders.EventReconcileCorrected,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      j.ServiceName,
		CorrelationID: key,
		Payload:       kafkax.MustMarshal(p),
	}
	j.Producer.Publish(orders.PartitionKey(key), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(orders.EventReconcileCorrected)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
