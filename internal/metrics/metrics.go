package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "offerpay_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	TopupOrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_topup_orders_total",
			Help: "Total number of top-up orders created",
		},
		[]string{"provider", "with_coupon"},
	)

	SettlementsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_settlements_total",
			Help: "Total number of settlement attempts",
		},
		[]string{"result"},
	)

	LedgerEntriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_ledger_entries_total",
			Help: "Total number of ledger entries written",
		},
		[]string{"type", "direction"},
	)

	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_webhook_events_total",
			Help: "Total number of inbound webhook events",
		},
		[]string{"provider", "outcome"},
	)

	CouponsAppliedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "offerpay_coupons_applied_total",
			Help: "Total number of top-up coupons applied at quote time",
		},
		[]string{"discount_type"},
	)

	DiscountAmountCents = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offerpay_discount_amount_cents_total",
			Help: "Cumulative discount granted, in minor currency units",
		},
	)

	ReplayQueueLength = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "offerpay_replay_queue_length",
			Help: "Current length of the webhook replay queue",
		},
	)

	StaleAttemptsSweptTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "offerpay_stale_attempts_swept_total",
			Help: "Total number of stale top-up attempts swept to failed",
		},
	)
)

func RecordHTTPRequest(method, path, status string, duration float64) {
	HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, path).Observe(duration)
}

func RecordTopupOrder(provider string, withCoupon bool) {
	label := "no"
	if withCoupon {
		label = "yes"
	}
	TopupOrdersTotal.WithLabelValues(provider, label).Inc()
}

func RecordSettlement(result string) {
	SettlementsTotal.WithLabelValues(result).Inc()
}

func RecordLedgerEntry(txType, direction string) {
	LedgerEntriesTotal.WithLabelValues(txType, direction).Inc()
}

func RecordWebhookEvent(provider, outcome string) {
	WebhookEventsTotal.WithLabelValues(provider, outcome).Inc()
}

func RecordCouponApplied(discountType string, discountCents int64) {
	CouponsAppliedTotal.WithLabelValues(discountType).Inc()
	if discountCents > 0 {
		DiscountAmountCents.Add(float64(discountCents))
	}
}
