// Package infer runs single inference passes against registered models,
// measuring wall-clock latency and attributing the accelerator used.
package infer

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/23skdu/longbow-bowyer/internal/cache"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/registry"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

var tracer = otel.Tracer("bowyer-infer")

// Result is one completed inference pass. Transient; never partial on
// failure.
type Result struct {
	Outputs       map[string][]float64
	LatencyMicros int64
	Units         device.Kind
}

// Executor marshals, runs and unmarshals one pass at a time per model.
type Executor struct {
	reg   *registry.Registry
	cache cache.ResultCache // nil disables memoization
}

func New(reg *registry.Registry, c cache.ResultCache) *Executor {
	return &Executor{reg: reg, cache: c}
}

// Run executes one inference pass. Marshaling failures and native
// failures surface as typed errors; other loaded models are unaffected.
func (x *Executor) Run(ctx context.Context, modelID string, inputs map[string][]float64) (*Result, error) {
	ctx, span := tracer.Start(ctx, "infer.run")
	defer span.End()
	span.SetAttributes(attribute.String("model_id", modelID))

	h, err := x.reg.Handle(modelID)
	if err != nil {
		return nil, err
	}

	var key string
	if x.cache != nil {
		key = cache.Key(inputs)
		if outputs, ok := x.cache.Get(modelID, key); ok {
			cacheHits.Inc()
			return &Result{Outputs: outputs, LatencyMicros: 0, Units: h.Units()}, nil
		}
	}

	bufs, err := tensor.Encode(inputs, h.Signature())
	if err != nil {
		marshalFailures.Inc()
		span.RecordError(err)
		return nil, err
	}

	start := time.Now()
	outBufs, err := h.Predict(ctx, bufs)
	elapsed := time.Since(start)
	if err != nil {
		inferenceFailures.Inc()
		span.RecordError(err)
		return nil, err
	}

	inferenceDuration.Observe(elapsed.Seconds())
	inferencesTotal.WithLabelValues(h.Units().String()).Inc()

	res := &Result{
		Outputs:       tensor.Decode(outBufs),
		LatencyMicros: elapsed.Microseconds(),
		Units:         h.Units(),
	}
	if x.cache != nil {
		x.cache.Put(modelID, key, res.Outputs)
	}
	return res, nil
}

// Heartbeat verifies the model is still registered and reports its
// accelerator without running the network. Used by streams started
// without pinned inputs.
func (x *Executor) Heartbeat(modelID string) (*Result, error) {
	h, err := x.reg.Handle(modelID)
	if err != nil {
		return nil, err
	}
	return &Result{Units: h.Units()}, nil
}
