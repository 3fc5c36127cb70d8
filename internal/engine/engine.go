// Package engine defines the interface every native inference runtime
// implements, and a registration table mapping model file extensions to
// the runtime that loads them. Variant runtimes (TensorFlow Lite, Core ML)
// register themselves from build-tagged files; the pure Go runtime is
// always present.
package engine

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

var (
	// ErrLoadFailed wraps a runtime's diagnostic for a malformed or
	// incompatible model file.
	ErrLoadFailed = errors.New("model load failed")

	// ErrInferenceFailed wraps a runtime's diagnostic for a failed
	// prediction. No partial output accompanies it.
	ErrInferenceFailed = errors.New("inference failed")
)

// Options carries load-time configuration into an engine.
type Options struct {
	// Units is the accelerator kind chosen by device.Select. Engines must
	// treat it as a hint: if constructing the accelerated path fails, they
	// fall back to CPU and report the kind actually in effect through
	// Model.Units.
	Units device.Kind

	// Threads caps CPU-path parallelism; 0 means runtime default.
	Threads int
}

// Engine loads compiled models for one native runtime.
type Engine interface {
	Name() string

	// Capability reports which accelerated paths this engine can attempt
	// on the current device and build.
	Capability() device.Capability

	// Load constructs a native model from the resolved path. The returned
	// Model owns all native resources until Close.
	Load(ctx context.Context, path string, opts Options) (Model, error)
}

// Model is one loaded native model. Implementations are not required to
// be safe for concurrent Predict calls; the registry serializes access
// per model.
type Model interface {
	// Signature returns the introspected tensor contract. Pure and
	// deterministic for the model's lifetime.
	Signature() tensor.Signature

	// Units reports the accelerator kind actually in effect.
	Units() device.Kind

	// Predict copies the input buffers into native storage, runs one
	// inference pass, and returns freshly allocated output buffers in
	// output signature order.
	Predict(ctx context.Context, inputs []tensor.Buffer) ([]tensor.Buffer, error)

	// Close releases the native handle and any accelerator delegate.
	// Safe to call once; the registry guarantees exactly-once.
	Close() error
}

var (
	regMu   sync.RWMutex
	byExt   = map[string]Engine{}
	engines []Engine
)

// Register associates an engine with the model file extensions it loads
// (e.g. ".tflite"). Called from package init in the variant packages; a
// later registration for the same extension wins, letting a cgo-backed
// runtime shadow its stub.
func Register(e Engine, exts ...string) {
	regMu.Lock()
	defer regMu.Unlock()
	engines = append(engines, e)
	for _, ext := range exts {
		byExt[strings.ToLower(ext)] = e
	}
}

// ForPath returns the engine registered for the path's extension.
func ForPath(path string) (Engine, error) {
	ext := strings.ToLower(filepath.Ext(path))
	regMu.RLock()
	defer regMu.RUnlock()
	e, ok := byExt[ext]
	if !ok {
		return nil, fmt.Errorf("%w: no runtime registered for %q", ErrLoadFailed, ext)
	}
	return e, nil
}

// Extensions returns the registered extensions, sorted.
func Extensions() []string {
	regMu.RLock()
	defer regMu.RUnlock()
	exts := make([]string, 0, len(byExt))
	for ext := range byExt {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}
