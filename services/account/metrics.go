package account

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/surfswift213us/coinblesk-server/util"
)

var (
	prometheusAccountCreate prometheus.Histogram
	prometheusAddressCreate prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusAccountCreate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "account",
			Name:      "create",
			Help:      "Histogram of calls to CreateAccount in the account service",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
	prometheusAddressCreate = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "account",
			Name:      "create_address",
			Help:      "Histogram of calls to CreateTimeLockedAddress in the account service",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
