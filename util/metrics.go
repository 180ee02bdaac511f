package util

// MetricsBucketsMilliSeconds defines histogram buckets for millisecond-level latency measurements.
var MetricsBucketsMilliSeconds = []float64{
	1e-3, 2e-3, 4e-3, 16e-3, 32e-3, 64e-3, 128e-3, 256e-3, 512e-3, 1024e-3, 2048e-3, 4096e-3,
}

// MetricsBucketsSeconds defines histogram buckets for second-level measurements.
var MetricsBucketsSeconds = []float64{
	0.25, 0.5, 1, 2, 4, 8, 16, 32, 64,
}
