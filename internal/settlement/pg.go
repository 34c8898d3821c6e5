package settlement

import (
	"context"
	"errors"
	"fmt"

	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

type PGStore struct{ DB *pgxpool.Pool }

// InsertOrder: order + items satu transaksi; tidak pernah ada order tanpa
// item yang bisa terobservasi. Race antar attempt diselesaikan oleh unique
// index orders_payment_session_id_key, bukan oleh cek find-or-create.
func (s *PGStore) InsertOrder(ctx context.Context, o orders.Order, items []orders.OrderItem) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO orders(id, payment_session_id, user_id, status, payment_status,
		                   payment_method, total_cents, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		o.ID, o.PaymentSessionID, o.UserID, o.Status, o.PaymentStatus,
		o.PaymentMethod, o.TotalCents, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			if pgErr.ConstraintName == "orders_payment_session_id_key" {
				return ErrDuplicateSession
			}
			return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
		}
		return err
	}

	for _, it := range items {
		_, err = tx.Exec(ctx, `
			INSERT INTO order_items(id, order_id, product_id, variant_id, qty, price_cents)
			VALUES ($1,$2,$3,$4,$5,$6)`,
			it.ID, it.OrderID, it.ProductID, it.VariantID, it.Qty, it.PriceCents,
		)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
				return fmt.Errorf("%w: %s", ErrConflict, pgErr.ConstraintName)
			}
			return err
		}
	}

	return tx.Commit(ctx)
}

func (s *PGStore) GetBySession(ctx context.Context, sessionID string) (orders.Order, []orders.OrderItem, error) {
	var o orders.Order
	err := s.DB.QueryRow(ctx, `
		SELECT id, payment_session_id, user_id, status, payment_status,
		       payment_method, total_cents, created_at, updated_at
		FROM orders WHERE payment_session_id=$1`, sessionID).
		Scan(&o.ID, &o.PaymentSessionID, &o.UserID, &o.Status, &o.PaymentStatus,
			&o.PaymentMethod, &o.TotalCents, &o.CreatedAt, &o.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, nil, fmt.Errorf("session %s: order not found", sessionID)
	}
	if err != nil {
		return orders.Order{}, nil, err
	}

	rows, err := s.DB.Query(ctx, `
		SELECT id, order_id, product_id, variant_id, qty, price_cents
		FROM order_items WHERE order_id=$1`, o.ID)
	if err != nil {
		return orders.Order{}, nil, err
	}
	defer rows.Close()

	var items []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.VariantID, &it.Qty, &it.PriceCents); err != nil {
			return orders.Order{}, nil, err
		}
		items = append(items, it)
	}
	return o, items, rows.Err()
}
