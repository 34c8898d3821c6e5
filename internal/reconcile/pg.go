package reconcile

import (
	"context"
	"time"

	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct{ DB *pgxpool.Pool }

func (s *PGStore) DuplicateSessions(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT payment_session_id FROM orders
		WHERE payment_session_id IS NOT NULL
		GROUP BY payment_session_id
		HAVING COUNT(*) > 1`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sid string
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out = append(out, sid)
	}
	return out, rows.Err()
}

func (s *PGStore) OrdersBySession(ctx context.Context, sessionID string) ([]orders.Order, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT id, payment_session_id, user_id, status, payment_status,
		       payment_method, total_cents, created_at, updated_at
		FROM orders WHERE payment_session_id=$1
		ORDER BY created_at, id`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Order
	for rows.Next() {
		var o orders.Order
		if err := rows.Scan(&o.ID, &o.PaymentSessionID, &o.UserID, &o.Status, &o.PaymentStatus,
			&o.PaymentMethod, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// MergeAndDelete: urutan hapus items dulu baru orders, satu transaksi —
// setengah-terhapus tidak boleh terobservasi.
func (s *PGStore) MergeAndDelete(ctx context.Context, survivor orders.Order, removeIDs []string) error {
	if len(removeIDs) == 0 {
		return nil
	}
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `
		UPDATE orders SET payment_method=$2, updated_at=now() WHERE id=$1`,
		survivor.ID, survivor.PaymentMethod); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM order_items WHERE order_id = ANY($1)`, removeIDs); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM orders WHERE id = ANY($1)`, removeIDs); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *PGStore) MismatchedProducts(ctx context.Context) ([]string, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT p.id
		FROM products p
		JOIN product_variants v ON v.product_id = p.id
		GROUP BY p.id, p.stock, p.is_active
		HAVING p.stock <> SUM(v.stock) OR p.is_active <> (SUM(v.stock) > 0)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *PGStore) StaleCartLines(ctx context.Context, cutoff time.Time) ([]orders.CartLine, error) {
	rows, err := s.DB.Query(ctx, `
		SELECT l.id, l.cart_id, l.product_id, l.variant_id, l.qty, l.created_at
		FROM cart_lines l
		LEFT JOIN carts c ON c.id = l.cart_id
		WHERE c.id IS NULL OR c.updated_at < $1
		ORDER BY l.created_at`, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.CartLine
	for rows.Next() {
		var l orders.CartLine
		if err := rows.Scan(&l.ID, &l.CartID, &l.ProductID, &l.VariantID, &l.Qty, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
