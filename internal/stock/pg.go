package stock

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGLedger struct{ DB *pgxpool.Pool }

// guard `stock + delta >= 0` ada di dalam statement UPDATE sendiri: cek dan
// tulis adalah satu step atomik, jadi tidak ada lost-update antar worker.

func (l *PGLedger) GetAvailable(ctx context.Context, productID, variantID string) (int, error) {
	var stock int
	var err error
	if variantID == "" {
		err = l.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&stock)
	} else {
		err = l.DB.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id=$1 AND product_id=$2`,
			variantID, productID).Scan(&stock)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return stock, err
}

func (l *PGLedger) Adjust(ctx context.Context, productID, variantID string, delta int) (int, error) {
	if variantID == "" {
		return l.adjustProduct(ctx, productID, delta)
	}
	return l.adjustVariant(ctx, productID, variantID, delta)
}

func (l *PGLedger) adjustProduct(ctx context.Context, productID string, delta int) (int, error) {
	var newStock int
	err := l.DB.QueryRow(ctx, `
		UPDATE products
		SET stock = stock + $2, is_active = stock + $2 > 0, updated_at = now()
		WHERE id = $1 AND stock + $2 >= 0
		RETURNING stock`, productID, delta).Scan(&newStock)
	if errors.Is(err, pgx.ErrNoRows) {
		// 0 row: bedakan tidak ada vs stok kurang
		var cur int
		if err2 := l.DB.QueryRow(ctx, `SELECT stock FROM products WHERE id=$1`, productID).Scan(&cur); err2 != nil {
			if errors.Is(err2, pgx.ErrNoRows) {
				return 0, ErrNotFound
			}
			return 0, err2
		}
		return cur, ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}
	return newStock, nil
}

func (l *PGLedger) adjustVariant(ctx context.Context, productID, variantID string, delta int) (int, error) {
	tx, err := l.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var newStock int
	err = tx.QueryRow(ctx, `
		UPDATE product_variants
		SET stock = stock + $3, updated_at = now()
		WHERE id = $2 AND product_id = $1 AND stock + $3 >= 0
		RETURNING stock`, productID, variantID, delta).Scan(&newStock)
	if errors.Is(err, pgx.ErrNoRows) {
		var cur int
		if err2 := tx.QueryRow(ctx, `SELECT stock FROM product_variants WHERE id=$1 AND product_id=$2`,
			variantID, productID).Scan(&cur); err2 != nil {
			if errors.Is(err2, pgx.ErrNoRows) {
				return 0, ErrNotFound
			}
			return 0, err2
		}
		return cur, ErrInsufficientStock
	}
	if err != nil {
		return 0, err
	}

	// agregat parent ikut di-commit bareng, invariant product = SUM(variant)
	if err := reaggregate(ctx, tx, productID); err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return newStock, nil
}

func reaggregate(ctx context.Context, tx pgx.Tx, productID string) error {
	ct, err := tx.Exec(ctx, `
		UPDATE products p
		SET stock = agg.total, is_active = agg.total > 0, updated_at = now()
		FROM (SELECT COALESCE(SUM(stock),0) AS total
		      FROM product_variants WHERE product_id = $1) agg
		WHERE p.id = $1`, productID)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("reaggregate: product %s: %w", productID, ErrNotFound)
	}
	return nil
}

func (l *PGLedger) ReconcileAggregate(ctx context.Context, productID string) (bool, error) {
	ct, err := l.DB.Exec(ctx, `
		UPDATE products p
		SET stock = agg.total, is_active = agg.total > 0, updated_at = now()
		FROM (SELECT COALESCE(SUM(stock),0) AS total, COUNT(*) AS n
		      FROM product_variants WHERE product_id = $1) agg
		WHERE p.id = $1
		  AND agg.n > 0
		  AND (p.stock <> agg.total OR p.is_active <> (agg.total > 0))`, productID)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}
