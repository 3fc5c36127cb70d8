package device

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bowyer_accelerator_fallbacks_total",
		Help: "Accelerator requests degraded to CPU, by requested kind",
	}, []string{"requested"})
)
