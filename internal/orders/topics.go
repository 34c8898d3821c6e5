package orders

const (
	TopicStockReserved      = "shop.stock.reserved"
	TopicStockRejected      = "shop.stock.rejected"
	TopicStockReleased      = "shop.stock.released"
	TopicPaymentCompleted   = "shop.payment.completed"
	TopicOrderSettled       = "shop.order.settled"
	TopicReconcileCorrected = "shop.reconcile.corrected"
)

// Partition key: event stock pakai product_id, event settlement pakai
// payment_session_id, supaya urutan per key terjaga.
func PartitionKey(id string) []byte { return []byte(id) }
