package pot

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/surfswift213us/coinblesk-server/util"
)

var (
	prometheusPotValue prometheus.Histogram
	prometheusPayout   prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusPotValue = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pot",
			Name:      "value",
			Help:      "Histogram of pot valuations",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusPayout = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pot",
			Name:      "payout",
			Help:      "Histogram of payouts",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
