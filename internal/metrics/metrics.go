// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every collector of a run. It is separate from the default
// registry so exported run metrics carry no Go runtime series.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ModelLoadSeconds is a histogram for resolving and downloading a model
	ModelLoadSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vit_model_load_seconds",
			Help:    "Histogram of model resolution latency (seconds), including hub downloads.",
			Buckets: []float64{.001, .01, .1, .5, 1, 5, 10, 30, 60, 300},
		},
	)

	// PreprocessSeconds is a histogram for decode plus transform time
	PreprocessSeconds = factory.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "vit_preprocess_seconds",
			Help:    "Histogram of image decode and preprocessing latency (seconds).",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
	)

	// InferenceLatencySeconds is a histogram for forward-pass-only latency
	InferenceLatencySeconds = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vit_inference_latency_seconds",
			Help:    "Histogram of forward pass latency (seconds).",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"device"},
	)

	// PredictionsTotal counts completed classifications
	PredictionsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vit_predictions_total",
			Help: "Number of completed image classifications.",
		},
		[]string{"model", "device"},
	)

	// TopConfidence is the confidence of the best prediction of the last run
	TopConfidence = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "vit_top_confidence",
			Help: "Confidence (0-1) of the highest ranked label of the last classification.",
		},
		[]string{"model"},
	)

	// CacheRequestsTotal counts prediction cache lookups by result
	CacheRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vit_cache_requests_total",
			Help: "Prediction cache lookups by result (hit, miss, invalid, error).",
		},
		[]string{"result"},
	)
)

// RecordModelLoad records the latency of resolving a model
func RecordModelLoad(seconds float64) {
	ModelLoadSeconds.Observe(seconds)
}

// RecordPreprocess records the latency of decoding and transforming an image
func RecordPreprocess(seconds float64) {
	PreprocessSeconds.Observe(seconds)
}

// RecordInferenceLatency records the latency of a forward pass
func RecordInferenceLatency(device string, seconds float64) {
	InferenceLatencySeconds.WithLabelValues(device).Observe(seconds)
}

// RecordPrediction records a completed classification and its best confidence
func RecordPrediction(model, device string, topConfidence float64) {
	PredictionsTotal.WithLabelValues(model, device).Inc()
	TopConfidence.WithLabelValues(model).Set(topConfidence)
}

// RecordCacheResult records a cache lookup outcome
func RecordCacheResult(result string) {
	CacheRequestsTotal.WithLabelValues(result).Inc()
}
