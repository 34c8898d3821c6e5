package orders

import (
	"encoding/json"
	"time"
)

const (
	EventStockReserved      = "StockReserved"
	EventStockRejected      = "StockRejected"
	EventStockReleased      = "StockReleased"
	EventPaymentCompleted   = "PaymentCompleted"
	EventOrderSettled       = "OrderSettled"
	EventReconcileCorrected = "ReconcileCorrected"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`   // RFC3339
	Producer      string          `json:"producer"`      // e.g., "shop-core-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // biasanya session_id atau product_id
	Payload       json.RawMessage `json:"payload"`                  // payload spesifik
}

// ---- Payload tipe per event ----

type StockMovedPayload struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int    `json:"qty"`
	Available int    `json:"available"`
}

type StockRejectedPayload struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Required  int    `json:"required"`
	Available int    `json:"available"`
	Reason    string `json:"reason"` // e.g., OUT_OF_STOCK
}

type SettleItem struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

// PaymentCompletedPayload datang dari payment provider (bridge), at-least-once.
type PaymentCompletedPayload struct {
	SessionID     string       `json:"session_id"`
	UserID        string       `json:"user_id"`
	PaymentMethod string       `json:"payment_method,omitempty"`
	Items         []SettleItem `json:"items"`
}

type OrderSettledPayload struct {
	OrderID    string `json:"order_id"`
	SessionID  string `json:"session_id"`
	UserID     string `json:"user_id"`
	TotalCents int    `json:"total_cents"`
	ItemCount  int    `json:"item_count"`
}

type ReconcileCorrectedPayload struct {
	Kind      string `json:"kind"` // DUPLICATE_ORDER | STOCK_MISMATCH | ORPHAN_FLAGGED
	SessionID string `json:"session_id,omitempty"`
	ProductID string `json:"product_id,omitempty"`
	Survivor  string `json:"survivor,omitempty"`
	Removed   int    `json:"removed,omitempty"`
	Detail    string `json:"detail,omitempty"`
}
