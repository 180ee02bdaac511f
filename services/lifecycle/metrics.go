package lifecycle

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/surfswift213us/coinblesk-server/util"
)

var (
	prometheusForceClose prometheus.Histogram
	prometheusSweep      prometheus.Histogram
)

var (
	prometheusMetricsInitOnce sync.Once
)

func initPrometheusMetrics() {
	prometheusMetricsInitOnce.Do(_initPrometheusMetrics)
}

func _initPrometheusMetrics() {
	prometheusForceClose = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lifecycle",
			Name:      "force_close",
			Help:      "Histogram of forced channel closes",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)

	prometheusSweep = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "lifecycle",
			Name:      "sweep",
			Help:      "Histogram of close sweep runs",
			Buckets:   util.MetricsBucketsMilliSeconds,
		},
	)
}
