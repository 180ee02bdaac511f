package ledger

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/surfswift213us/coinblesk-server/util"
)

var (
	prometheusTransfer      prometheus.Histogram
	prometheusChannelUpdate prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusTransfer = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "transfer",
			Help:      "Histogram of calls to Transfer in the ledger service",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
	prometheusChannelUpdate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ledger",
			Name:      "channel_update",
			Help:      "Histogram of calls to ApplyChannelUpdate in the ledger service",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
