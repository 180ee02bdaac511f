package validator

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/surfswift213us/coinblesk-server/util"
)

var (
	prometheusValidateChannelTx prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusValidateChannelTx = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "validator",
			Name:      "validate_channel_tx",
			Help:      "Histogram of calls to ValidateChannelTransaction",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
