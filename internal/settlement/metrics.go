package settlement

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tanda_settlement_submissions_total",
		Help: "Number of transfer intents handed to the signing service.",
	})

	confirmationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tanda_settlement_confirmations_total",
		Help: "Number of payments confirmed on chain.",
	})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tanda_settlement_failures_total",
		Help: "Number of settlement failures by reason.",
	}, []string{"reason"})

	confirmationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tanda_settlement_confirmation_seconds",
		Help:    "Time from broadcast acceptance to on-chain confirmation.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 8),
	})
)
