package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the escrow market.
type Metrics struct {
	RoundsCreated     prometheus.Counter
	PurchasesCreated  prometheus.Counter
	PurchasesSettled  prometheus.Counter
	PurchasesRefunded prometheus.Counter
	EscrowedTotal     prometheus.Counter
}

// New creates and registers all market metrics.
func New() *Metrics {
	return &Metrics{
		RoundsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equilex_rounds_created_total",
			Help: "Total number of issuance rounds created",
		}),
		PurchasesCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equilex_purchases_created_total",
			Help: "Total number of purchases escrowed",
		}),
		PurchasesSettled: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equilex_purchases_settled_total",
			Help: "Total number of purchases settled",
		}),
		PurchasesRefunded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equilex_purchases_refunded_total",
			Help: "Total number of purchases refunded",
		}),
		EscrowedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "equilex_escrowed_payment_total",
			Help: "Cumulative payment amount taken into escrow",
		}),
	}
}
