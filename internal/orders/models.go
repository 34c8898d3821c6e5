package orders

import "time"

type Product struct {
	ID         string
	SKU        string
	Name       string
	Stock      int // agregat: = SUM(variant.stock) kalau punya variant
	PriceCents int
	IsActive   bool // derived: effective stock > 0
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type ProductVariant struct {
	ID        string
	ProductID string
	SKU       string
	Size      string
	Color     string
	Stock     int
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Order struct {
	ID               string
	PaymentSessionID *string // idempotency key dari payment provider, UNIQUE kalau ada
	UserID           string
	Status           Status
	PaymentStatus    PaymentStatus
	PaymentMethod    *string
	TotalCents       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type OrderItem struct {
	ID         string
	OrderID    string
	ProductID  string
	VariantID  *string
	Qty        int
	PriceCents int // snapshot saat settle, tidak ikut perubahan harga product
}

// CartLine hanya dibaca oleh reconciler (orphan heuristic); lifecycle cart
// sendiri ada di service lain.
type CartLine struct {
	ID        string
	CartID    string
	ProductID string
	VariantID *string
	Qty       int
	CreatedAt time.Time
}
