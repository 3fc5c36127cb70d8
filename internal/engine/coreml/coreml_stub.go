//go:build !darwin || !coreml

// Package coreml binds Core ML through a small Objective-C shim. This
// stub is compiled off macOS or without the coreml build tag: .mlmodelc
// bundles stay routable but loading one reports a typed load failure.
package coreml

import (
	"context"
	"fmt"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
)

func init() {
	engine.Register(New(), ".mlmodelc")
}

var _ engine.Engine = (*Engine)(nil)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "coreml"
}

func (e *Engine) Capability() device.Capability {
	return device.Capability{}
}

func (e *Engine) Load(ctx context.Context, path string, opts engine.Options) (engine.Model, error) {
	return nil, fmt.Errorf("%w: built without CoreML support (build with -tags coreml on macOS)", engine.ErrLoadFailed)
}
