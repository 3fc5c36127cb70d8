// Package registry owns every loaded model. Each entry pairs a native
// model handle with its cached signature and accelerator kind under a
// generated id; the registry is the only component that creates or
// releases native resources, and it releases each exactly once.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/assets"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

// ErrModelNotFound reports an unknown or already-disposed model id.
var ErrModelNotFound = errors.New("model not found")

type entry struct {
	id    string
	sig   tensor.Signature
	units device.Kind
	eng   string

	// mu serializes native access (predict, close) for this entry only;
	// operations on distinct models never contend.
	mu     sync.Mutex
	closed bool
	model  engine.Model
}

// Registry maps generated model ids to loaded models. Ids are never
// reused, even after disposal.
type Registry struct {
	resolver assets.Resolver
	threads  int

	mu     sync.RWMutex
	models map[string]*entry

	onDispose func(modelID string)
}

func New(resolver assets.Resolver, threads int) *Registry {
	return &Registry{
		resolver: resolver,
		threads:  threads,
		models:   make(map[string]*entry),
	}
}

// SetDisposeHook registers a callback invoked for every disposed id
// before native resources are released. Wired to the stream coordinator
// and cache so disposal tears down everything attached to the id.
// Must be called before the registry is shared.
func (r *Registry) SetDisposeHook(fn func(modelID string)) {
	r.onDispose = fn
}

// Load resolves the asset, selects the accelerator, constructs the
// native model and stores it under a fresh id.
func (r *Registry) Load(ctx context.Context, assetPath string, requested device.Kind) (string, error) {
	path, err := r.resolver.Resolve(assetPath)
	if err != nil {
		return "", err
	}

	eng, err := engine.ForPath(path)
	if err != nil {
		return "", err
	}

	units := device.Select(requested, eng.Capability())
	model, err := eng.Load(ctx, path, engine.Options{Units: units, Threads: r.threads})
	if err != nil {
		return "", err
	}

	e := &entry{
		id:    uuid.NewString(),
		sig:   model.Signature(),
		units: model.Units(),
		eng:   eng.Name(),
		model: model,
	}

	r.mu.Lock()
	r.models[e.id] = e
	r.mu.Unlock()

	modelsLoaded.Inc()
	loadsTotal.WithLabelValues(eng.Name()).Inc()
	log.Info().
		Str("model_id", e.id).
		Str("asset", assetPath).
		Str("engine", eng.Name()).
		Str("accelerator", e.units.String()).
		Int("inputs", len(e.sig.Inputs)).
		Int("outputs", len(e.sig.Outputs)).
		Msg("Model loaded")
	return e.id, nil
}

// Signature returns the cached signature. Pure lookup, no recomputation.
func (r *Registry) Signature(modelID string) (tensor.Signature, error) {
	r.mu.RLock()
	e, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return tensor.Signature{}, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	return e.sig, nil
}

// Handle returns a stable reference to a loaded model. The reference
// stays valid across a concurrent dispose: predictions after disposal
// fail with ErrModelNotFound instead of touching freed native memory.
func (r *Registry) Handle(modelID string) (*Handle, error) {
	r.mu.RLock()
	e, ok := r.models[modelID]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, modelID)
	}
	return &Handle{e: e}, nil
}

// Dispose releases the model's native resources and removes the entry.
// Idempotent: unknown or already-disposed ids are a no-op.
func (r *Registry) Dispose(modelID string) {
	r.mu.Lock()
	e, ok := r.models[modelID]
	if ok {
		delete(r.models, modelID)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	if r.onDispose != nil {
		r.onDispose(modelID)
	}

	// Waits out any in-flight predict on this entry, then releases the
	// native handle exactly once.
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		if err := e.model.Close(); err != nil {
			log.Warn().Err(err).Str("model_id", modelID).Msg("Error releasing native model")
		}
	}
	e.mu.Unlock()

	modelsLoaded.Dec()
	disposalsTotal.WithLabelValues(e.eng).Inc()
	log.Info().Str("model_id", modelID).Msg("Model disposed")
}

// Count returns the number of live entries.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}

// Handle is a stable reference to one registry entry.
type Handle struct {
	e *entry
}

func (h *Handle) ID() string {
	return h.e.id
}

func (h *Handle) Signature() tensor.Signature {
	return h.e.sig
}

func (h *Handle) Units() device.Kind {
	return h.e.units
}

// Predict runs one native inference pass. Serialized with Close for the
// same entry, so a dispose never frees buffers out from under a run.
func (h *Handle) Predict(ctx context.Context, inputs []tensor.Buffer) ([]tensor.Buffer, error) {
	h.e.mu.Lock()
	defer h.e.mu.Unlock()
	if h.e.closed {
		return nil, fmt.Errorf("%w: %s", ErrModelNotFound, h.e.id)
	}
	return h.e.model.Predict(ctx, inputs)
}
