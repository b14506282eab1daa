package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DiscountEvaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_evaluations_total",
		Help: "Discount code evaluations by outcome",
	}, []string{"result"})

	DiscountConsumedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "discount_consumed_total",
		Help: "Total number of discount codes consumed at order commit",
	})

	DiscountConsumeRejectedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "discount_consume_rejected_total",
		Help: "Discount consumptions rejected at order commit",
	}, []string{"reason"})

	OrdersPlacedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_placed_total",
		Help: "Total number of orders placed",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Total number of failed checkouts",
	}, []string{"reason"})

	AnalyticsEventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_events_total",
		Help: "Analytics events applied to the daily aggregates",
	}, []string{"kind"})

	AnalyticsEventFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_event_failures_total",
		Help: "Analytics events that failed or were dropped",
	}, []string{"kind", "reason"})

	TrafficFlushTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "traffic_flush_total",
		Help: "Traffic cache drains by outcome",
	}, []string{"result"})

	TrafficFlushLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "traffic_flush_latency_seconds",
		Help:    "Latency of a full traffic cache flush",
		Buckets: prometheus.DefBuckets,
	})

	BouncesFinalizedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bounces_finalized_total",
		Help: "Single-page sessions finalized as bounces by the sweep",
	})

	SegmentsUpdatedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "user_segments_updated_total",
		Help: "User segment assignments by segment",
	}, []string{"segment"})

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
