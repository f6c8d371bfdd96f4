package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	OrdersCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_created_total",
		Help: "Total number of orders created",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of rejected order creations",
	}, []string{"reason"})

	OrderTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_transitions_total",
		Help: "Total number of order status transitions",
	}, []string{"to_status"})

	OrderItemTransitionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "order_item_transitions_total",
		Help: "Total number of order item status transitions",
	}, []string{"to_status"})

	ReservationsHeldTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_held_total",
		Help: "Total number of stock reservations successfully held",
	})

	ReservationsCommittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stock_reservations_committed_total",
		Help: "Total number of stock reservations committed",
	})

	ReservationsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_released_total",
		Help: "Total number of stock reservations released",
	}, []string{"cause"})

	ReservationsFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_reservations_failed_total",
		Help: "Total number of failed stock reservation attempts",
	}, []string{"reason"})

	ReserveLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "stock_reserve_latency_seconds",
		Help:    "Latency of stock reservation attempts",
		Buckets: prometheus.DefBuckets,
	})

	StockAdjustmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stock_adjustments_total",
		Help: "Total number of direct stock adjustments",
	}, []string{"direction"})

	OutboxPublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_published_total",
		Help: "Total number of outbox events published to the broker",
	})

	OutboxRetriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_publish_retries_total",
		Help: "Total number of outbox publish retries",
	})

	OutboxDeadLetteredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "outbox_events_dead_lettered_total",
		Help: "Total number of outbox events moved to the dead-letter state",
	})

	ProjectionEventsAppliedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_events_applied_total",
		Help: "Total number of events applied to read-side projections",
	}, []string{"projection"})

	ProjectionDuplicatesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "projection_duplicate_events_total",
		Help: "Total number of duplicate events skipped by projections",
	}, []string{"projection"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
