package infer

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	inferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "bowyer_inference_duration_seconds",
		Help:    "Wall-clock duration of native inference passes",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 16),
	})
	inferencesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bowyer_inferences_total",
		Help: "Completed inference passes by accelerator",
	}, []string{"units"})
	inferenceFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_inference_failures_total",
		Help: "Inference passes that failed in the native runtime",
	})
	marshalFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_marshal_failures_total",
		Help: "Inference requests rejected while marshaling inputs",
	})
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_result_cache_hits_total",
		Help: "Inference requests served from the result cache",
	})
)
