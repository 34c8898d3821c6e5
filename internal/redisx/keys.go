package redisx

import "time"

const (
	// Dedup notifikasi payment provider: dedup:{service}:{id}
	// (id = notification_id atau event_id; DB constraint tetap jadi kebenaran)
	KeyDedup = "dedup:%s:%s"

	// Cache status order: order_status:{order_id} -> {"status":"...","payment_status":"..."}
	KeyOrderStatus = "order_status:%s"

	// Shortcut settlement: settle:session:{payment_session_id} -> order_id
	KeySettleSession = "settle:session:%s"
)

var (
	TTLDedup       = 48 * time.Hour
	TTLStatusCache = 5 * time.Minute
	TTLSettlement  = 24 * time.Hour
)
