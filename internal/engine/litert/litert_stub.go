//go:build !litert

// Package litert binds the TensorFlow Lite C API. This stub is compiled
// when the litert build tag is absent: .tflite models stay routable but
// loading one reports a typed load failure instead of panicking, since a
// failed load is a recoverable condition for the bridge.
package litert

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
)

func init() {
	engine.Register(New(), ".tflite")
}

var _ engine.Engine = (*Engine)(nil)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "litert"
}

func (e *Engine) Capability() device.Capability {
	return device.Capability{}
}

func (e *Engine) Load(ctx context.Context, path string, opts engine.Options) (engine.Model, error) {
	return nil, fmt.Errorf("%w: built without TensorFlow Lite support (build with -tags litert)", engine.ErrLoadFailed)
}
