package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrOrderNotFound = errors.New("order not found")

// Catalog adalah read-side kecil untuk endpoint listing/status. Mutasi stok
// tidak lewat sini — itu milik stock.Ledger.
type Catalog struct{ DB *pgxpool.Pool }

func (c *Catalog) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, sku, name, stock, price_cents, is_active, created_at, updated_at
		FROM products ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Name, &p.Stock, &p.PriceCents, &p.IsActive,
			&p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *Catalog) VariantsByProduct(ctx context.Context, productID string) ([]ProductVariant, error) {
	rows, err := c.DB.Query(ctx, `
		SELECT id, product_id, sku, size, color, stock, created_at, updated_at
		FROM product_variants WHERE product_id=$1 ORDER BY sku`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ProductVariant
	for rows.Next() {
		var v ProductVariant
		if err := rows.Scan(&v.ID, &v.ProductID, &v.SKU, &v.Size, &v.Color, &v.Stock,
			&v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c *Catalog) GetOrderStatus(ctx context.Context, orderID string) (Status, PaymentStatus, error) {
	var s, ps string
	err := c.DB.QueryRow(ctx, `SELECT status, payment_status FROM orders WHERE id=$1`, orderID).Scan(&s, &ps)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", "", ErrOrderNotFound
	}
	if err != nil {
		return "", "", err
	}
	return Status(s), PaymentStatus(ps), nil
}
