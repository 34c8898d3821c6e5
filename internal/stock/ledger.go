package stock

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientStock: hasil adjust akan negatif. Expected, user-facing,
	// tidak pernah di-retry otomatis.
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrNotFound          = errors.New("stock target not found")
)

// Ledger adalah satu-satunya pemilik counter stok. Semua mutasi harus berupa
// satu conditional update di store (tidak pernah read-modify-write lintas
// round trip), supaya linearizable per (product, variant).
type Ledger interface {
	// GetAvailable membaca stok sellable. variantID "" = level product.
	GetAvailable(ctx context.Context, productID, variantID string) (int, error)

	// Adjust menerapkan delta (negatif = reserve, positif = release) secara
	// atomik dan mengembalikan stok baru. ErrInsufficientStock kalau hasilnya
	// bakal negatif; tidak ada efek parsial. Setelah adjust variant, stok
	// agregat product + is_active ditulis ulang dalam unit kerja yang sama.
	Adjust(ctx context.Context, productID, variantID string, delta int) (int, error)

	// ReconcileAggregate menghitung ulang stok product dari variant-nya dan
	// menulis ulang hanya kalau beda. Idempotent; aman dipanggil kapan saja.
	// corrected=false berarti NoOp (sudah konsisten, atau tidak punya variant).
	ReconcileAggregate(ctx context.Context, productID string) (corrected bool, err error)
}
