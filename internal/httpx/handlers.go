package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/catursari/go-stock-settlement.git/internal/metrics"
	"github.com/catursari/go-stock-settlement.git/internal/orders"
	"github.com/catursari/go-stock-settlement.git/internal/redisx"
	"github.com/catursari/go-stock-settlement.git/internal/reservation"
	"github.com/catursari/go-stock-settlement.git/internal/settlement"
	"github.com/catursari/go-stock-settlement.git/internal/stock"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

type Reserver interface {
	Reserve(ctx context.Context, productID, variantID string, qty int) (reservation.Result, error)
	Release(ctx context.Context, productID, variantID string, qty int) (int, error)
}

type Settler interface {
	Settle(ctx context.Context, sessionID string, p settlement.Payload) (orders.Order, bool, error)
}

type CatalogReader interface {
	ListProducts(ctx context.Context) ([]orders.Product, error)
	VariantsByProduct(ctx context.Context, productID string) ([]orders.ProductVariant, error)
	GetOrderStatus(ctx context.Context, orderID string) (orders.Status, orders.PaymentStatus, error)
}

type Handler struct {
	Reservations Reserver
	Settlements  Settler
	Catalog      CatalogReader
	Ledger       stock.Ledger
	Redis        *redis.Client
	Log          zerolog.Logger
}

func (h *Handler) Register(r *chi.Mux) {
	r.Get("/products", h.listProducts)
	r.Get("/stock/{productID}", h.getStock)
	r.Post("/cart/reserve", h.reserve)
	r.Post("/cart/release", h.release)
	r.Post("/payments/webhook", h.paymentWebhook)
	r.Post("/payments/confirm", h.paymentConfirm)
	r.Get("/orders/{id}", h.getOrder)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// ---- stock & cart ----

type LineReq struct {
	ProductID string `json:"product_id"`
	VariantID string `json:"variant_id,omitempty"`
	Qty       int    `json:"qty"`
}

func (h *Handler) getStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")
	variantID := r.URL.Query().Get("variant")

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	avail, err := h.Ledger.GetAvailable(ctx, productID, variantID)
	if errors.Is(err, stock.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": avail})
}

func (h *Handler) reserve(w http.ResponseWriter, r *http.Request) {
	var req LineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Reservations.Reserve(ctx, req.ProductID, req.VariantID, req.Qty)
	if errors.Is(err, stock.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	if err != nil {
		// timeout dsb: caller TIDAK boleh retry buta — cek GetAvailable dulu,
		// karena timeout tidak memberi tahu apakah adjust-nya commit.
		h.Log.Error().Err(err).Str("product_id", req.ProductID).Msg("reserve failed")
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !res.OK {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":     "insufficient stock",
			"reason":    res.Reason,
			"available": res.Available,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": res.Available})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	var req LineReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.ProductID == "" || req.Qty <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	avail, err := h.Reservations.Release(ctx, req.ProductID, req.VariantID, req.Qty)
	if errors.Is(err, stock.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "product not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"available": avail})
}

// ---- settlement ----

type SettleItemReq struct {
	ProductID  string `json:"product_id"`
	VariantID  string `json:"variant_id,omitempty"`
	Qty        int    `json:"qty"`
	PriceCents int    `json:"price_cents"`
}

type SettleReq struct {
	SessionID      string          `json:"session_id"`
	NotificationID string          `json:"notification_id,omitempty"` // hanya dari webhook
	UserID         string          `json:"user_id"`
	PaymentMethod  string          `json:"payment_method,omitempty"`
	Items          []SettleItemReq `json:"items"`
}

type SettleResp struct {
	OrderID        string `json:"order_id"`
	SessionID      string `json:"session_id"`
	Status         string `json:"status"`
	PaymentStatus  string `json:"payment_status"`
	TotalCents     int    `json:"total_cents"`
	AlreadySettled bool   `json:"already_settled"`
}

// paymentWebhook: trigger asinkron dari payment provider, at-least-once.
// Dedup Redis cuma fast path untuk ack redelivery; unique constraint di DB
// tetap jadi kebenaran.
func (h *Handler) paymentWebhook(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "webhook")
}

// paymentConfirm: trigger sinkron dari success page client. AlreadySettled
// adalah sukses, bukan error — dua-duanya "pesanan kamu terkonfirmasi".
func (h *Handler) paymentConfirm(w http.ResponseWriter, r *http.Request) {
	h.settle(w, r, "confirm")
}

func (h *Handler) settle(w http.ResponseWriter, r *http.Request, trigger string) {
	var req SettleReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SessionID == "" || len(req.Items) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing fields"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if req.NotificationID != "" && h.Redis != nil {
		dkey := fmt.Sprintf(redisx.KeyDedup, "webhook", req.NotificationID)
		if ok, _ := redisx.Exists(ctx, h.Redis, dkey); ok {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "duplicate": true})
			return
		}
	}

	items := make([]settlement.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, settlement.Item{
			ProductID: it.ProductID, VariantID: it.VariantID,
			Qty: it.Qty, PriceCents: it.PriceCents,
		})
	}

	o, created, err := h.Settlements.Settle(ctx, req.SessionID, settlement.Payload{
		UserID:        req.UserID,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		metrics.Settlements.WithLabelValues(trigger, "error").Inc()
		code := http.StatusInternalServerError
		if errors.Is(err, settlement.ErrConflict) {
			code = http.StatusConflict // retryable, payload sama
		}
		h.Log.Error().Err(err).Str("trigger", trigger).Str("session_id", req.SessionID).Msg("settle failed")
		writeJSON(w, code, map[string]string{"error": err.Error()})
		return
	}

	if created {
		metrics.Settlements.WithLabelValues(trigger, "created").Inc()
	} else {
		metrics.Settlements.WithLabelValues(trigger, "already_settled").Inc()
	}

	if h.Redis != nil {
		if req.NotificationID != "" {
			dkey := fmt.Sprintf(redisx.KeyDedup, "webhook", req.NotificationID)
			_ = h.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
		}
		_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeySettleSession, req.SessionID), o.ID, redisx.TTLSettlement).Err()
		statusJSON, _ := json.Marshal(map[string]string{
			"status":         string(o.Status),
			"payment_status": string(o.PaymentStatus),
		})
		_ = h.Redis.Set(ctx, fmt.Sprintf(redisx.KeyOrderStatus, o.ID), statusJSON, redisx.TTLStatusCache).Err()
	}

	writeJSON(w, http.StatusOK, SettleResp{
		OrderID:        o.ID,
		SessionID:      req.SessionID,
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		TotalCents:     o.TotalCents,
		AlreadySettled: !created,
	})
}

// ---- reads ----

type ProductResp struct {
	ID         string        `json:"id"`
	SKU        string        `json:"sku"`
	Name       string        `json:"name"`
	Stock      int           `json:"stock"`
	PriceCents int           `json:"price_cents"`
	IsActive   bool          `json:"is_active"`
	Variants   []VariantResp `json:"variants,omitempty"`
}

type VariantResp struct {
	ID    string `json:"id"`
	SKU   string `json:"sku"`
	Size  string `json:"size,omitempty"`
	Color string `json:"color,omitempty"`
	Stock int    `json:"stock"`
}

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ps, err := h.Catalog.ListProducts(ctx)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	out := make([]ProductResp, 0, len(ps))
	for _, p := range ps {
		vs, err := h.Catalog.VariantsByProduct(ctx, p.ID)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
			return
		}
		pr := ProductResp{
			ID: p.ID, SKU: p.SKU, Name: p.Name,
			Stock: p.Stock, PriceCents: p.PriceCents, IsActive: p.IsActive,
		}
		for _, v := range vs {
			pr.Variants = append(pr.Variants, VariantResp{
				ID: v.ID, SKU: v.SKU, Size: v.Size, Color: v.Color, Stock: v.Stock,
			})
		}
		out = append(out, pr)
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "id")
	if orderID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache
	key := fmt.Sprintf(redisx.KeyOrderStatus, orderID)
	if h.Redis != nil {
		if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
			writeJSON(w, http.StatusOK, json.RawMessage(s))
			return
		}
	}

	// 2) fallback DB
	status, payStatus, err := h.Catalog.GetOrderStatus(ctx, orderID)
	if errors.Is(err, orders.ErrOrderNotFound) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	body := map[string]string{"status": string(status), "payment_status": string(payStatus)}
	b, _ := json.Marshal(body)
	if h.Redis != nil {
		_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
