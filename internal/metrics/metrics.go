package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "aichat_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// QuotaDecisionsTotal counts admission decisions by account kind and outcome (free, paid, rejected).
	QuotaDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_quota_decisions_total",
			Help: "Total number of quota admission decisions.",
		},
		[]string{"kind", "outcome"},
	)

	QuotaReleasesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_quota_releases_total",
			Help: "Total number of reservations released after a failed completion.",
		},
		[]string{"consequence"},
	)

	PurchasesCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_purchases_completed_total",
			Help: "Total number of purchases credited to an account.",
		},
		[]string{"source", "package"},
	)

	PaymentWebhooksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_payment_webhooks_total",
			Help: "Total number of payment webhook deliveries by result.",
		},
		[]string{"result"},
	)

	CompletionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "aichat_completions_total",
			Help: "Total number of completion provider calls by status.",
		},
		[]string{"status"},
	)

	CompletionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aichat_completion_duration_seconds",
			Help:    "Completion provider latency in seconds.",
			Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32, 64},
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		QuotaDecisionsTotal,
		QuotaReleasesTotal,
		PurchasesCompletedTotal,
		PaymentWebhooksTotal,
		CompletionsTotal,
		CompletionDuration,
	)
}
