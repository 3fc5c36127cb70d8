package registry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	modelsLoaded = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "bowyer_models_loaded",
		Help: "Number of models currently resident in the registry",
	})

	loadsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bowyer_model_loads_total",
		Help: "Successful model loads by engine",
	}, []string{"engine"})

	disposalsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bowyer_model_disposals_total",
		Help: "Model disposals by engine",
	}, []string{"engine"})
)
