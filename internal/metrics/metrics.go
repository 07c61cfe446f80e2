package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Счётчики жизненного цикла транзакций и работы склада.
var (
	TransactionsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_created_total",
		Help: "Total number of purchase transactions created",
	})

	TransactionsApprovedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_approved_total",
		Help: "Total number of transactions that reached Approved",
	})

	TransactionsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "transactions_failed_total",
		Help: "Total number of failed transactions",
	}, []string{"reason"})

	TransactionsCollidedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_collided_total",
		Help: "Total number of transactions that ended PaidButCollided",
	})

	ReservationsFailedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of reservations rejected for insufficient stock",
	})

	PaymentLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "payment_capture_latency_seconds",
		Help:    "Latency of payment gateway authorize+capture calls",
		Buckets: prometheus.DefBuckets,
	})

	SweptTransactionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "transactions_swept_total",
		Help: "Total number of pending transactions failed by the TTL sweeper",
	})

	DisputeMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "dispute_messages_total",
		Help: "Total number of dispute messages posted",
	})

	ReportsFiledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reports_filed_total",
		Help: "Total number of reports filed against disputes",
	})
)
