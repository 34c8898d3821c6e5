package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Reservations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_reservations_total",
		Help: "Hasil operasi reserve/release pada stock ledger.",
	}, []string{"op", "result"}) // op: reserve|release, result: ok|rejected|error

	Settlements = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_settlements_total",
		Help: "Hasil Settle per trigger.",
	}, []string{"trigger", "result"}) // trigger: webhook|confirm|consumer, result: created|already_settled|error

	ReconcileCorrections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "shop_reconcile_corrections_total",
		Help: "Koreksi yang dilakukan reconciliation job.",
	}, []string{"kind"}) // kind: duplicate_order|stock_mismatch|orphan_flagged
)
