package stream

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	activeStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bowyer_active_streams",
		Help: "Number of running periodic inference streams",
	})
	tickFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_stream_tick_failures_total",
		Help: "Stream ticks that failed and were skipped",
	})
	droppedResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "bowyer_stream_dropped_results_total",
		Help: "Stream results dropped because the subscriber was slow",
	})
)
