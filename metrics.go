package skhub

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	loaderPrometheusMetrics sync.Once

	loaderFetchDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skhub",
			Subsystem: "loader",
			Name:      "fetch_duration_seconds",
			Help:      "Amount of time spent resolving model files, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"result"})

	loaderDecodeDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "skhub",
			Subsystem: "loader",
			Name:      "decode_duration_seconds",
			Help:      "Amount of time spent decoding model files, in seconds.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 10),
		},
		[]string{"method", "result"})
)

func registerLoaderMetrics() {
	loaderPrometheusMetrics.Do(func() {
		prometheus.MustRegister(loaderFetchDurationSeconds)
		prometheus.MustRegister(loaderDecodeDurationSeconds)
	})
}

func resultLabel(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}

type metricsFetcher struct {
	base Fetcher
}

// NewMetricsFetcher creates a decorator for Fetcher that exposes the
// duration of every fetch as a Prometheus metric.
func NewMetricsFetcher(base Fetcher) Fetcher {
	registerLoaderMetrics()
	return &metricsFetcher{base: base}
}

func (f *metricsFetcher) Fetch(ctx context.Context, ref ModelRef) (string, error) {
	start := time.Now()
	path, err := f.base.Fetch(ctx, ref)
	loaderFetchDurationSeconds.WithLabelValues(resultLabel(err)).Observe(time.Since(start).Seconds())
	return path, err
}

type metricsDecoder struct {
	base   Decoder
	method string
}

// NewMetricsDecoder creates a decorator for Decoder that exposes the
// duration of every decode as a Prometheus metric, labeled with method.
func NewMetricsDecoder(base Decoder, method SerializationMethod) Decoder {
	registerLoaderMetrics()
	return &metricsDecoder{base: base, method: method.String()}
}

func (d *metricsDecoder) Decode(path string) (any, error) {
	start := time.Now()
	v, err := d.base.Decode(path)
	loaderDecodeDurationSeconds.WithLabelValues(d.method, resultLabel(err)).Observe(time.Since(start).Seconds())
	return v, err
}
