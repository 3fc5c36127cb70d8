//go:build litert

// Package litert binds the TensorFlow Lite C API. Built with -tags litert
// against the system tensorflowlite_c library; other builds get the stub.
package litert

/*
#cgo LDFLAGS: -ltensorflowlite_c
#include <stdlib.h>
#include "tensorflow/lite/c/c_api.h"
*/
import "C"

import (
	"context"
	"fmt"
	"runtime"
	"unsafe"

	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

func init() {
	engine.Register(New(), ".tflite")
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.Model = (*Model)(nil)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "litert"
}

// Capability: GPU when the delegate is compiled in (-tags litert_gpu).
// There is no NNAPI binding, so a dedicated-accelerator request degrades
// to CPU before Load sees it.
func (e *Engine) Capability() device.Capability {
	return device.Capability{GPU: gpuSupported}
}

func (e *Engine) Load(ctx context.Context, path string, opts engine.Options) (engine.Model, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	cModel := C.TfLiteModelCreateFromFile(cPath)
	if cModel == nil {
		return nil, fmt.Errorf("%w: litert could not parse %s", engine.ErrLoadFailed, path)
	}

	cOpts := C.TfLiteInterpreterOptionsCreate()
	defer C.TfLiteInterpreterOptionsDelete(cOpts)

	threads := opts.Threads
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	C.TfLiteInterpreterOptionsSetNumThreads(cOpts, C.int32_t(threads))

	// The delegate is a hint: a construction failure downgrades the
	// reported units instead of failing the load.
	units := opts.Units
	var delegate unsafe.Pointer
	var delegateFree func()
	if units == device.CPUAndGPU || units == device.All {
		var err error
		delegate, delegateFree, err = newGPUDelegate()
		if err != nil {
			log.Warn().Err(err).Str("model", path).Msg("GPU delegate unavailable, using CPU interpreter")
			units = device.CPUOnly
		} else {
			C.TfLiteInterpreterOptionsAddDelegate(cOpts, (*C.TfLiteDelegate)(delegate))
			units = device.CPUAndGPU
		}
	} else {
		units = device.CPUOnly
	}

	fail := func(format string, args ...any) (engine.Model, error) {
		if delegateFree != nil {
			delegateFree()
		}
		C.TfLiteModelDelete(cModel)
		return nil, fmt.Errorf("%w: %s", engine.ErrLoadFailed, fmt.Sprintf(format, args...))
	}

	interp := C.TfLiteInterpreterCreate(cModel, cOpts)
	if interp == nil {
		return nil, fail("interpreter construction failed for %s", path)
	}
	if status := C.TfLiteInterpreterAllocateTensors(interp); status != C.kTfLiteOk {
		C.TfLiteInterpreterDelete(interp)
		return nil, fail("tensor allocation failed (status %d)", int(status))
	}

	m := &Model{
		model:        cModel,
		interp:       interp,
		delegateFree: delegateFree,
		units:        units,
	}
	m.sig = m.introspect()
	return m, nil
}

// Model wraps one TFLite interpreter. Interpreter access is not
// thread-safe; the registry serializes Predict and Close.
type Model struct {
	model        *C.TfLiteModel
	interp       *C.TfLiteInterpreter
	delegateFree func()
	units        device.Kind
	sig          tensor.Signature
}

// introspect derives the signature from interpreter metadata, in the
// runtime's own index order. Unrecognized native types map to Unknown.
func (m *Model) introspect() tensor.Signature {
	var sig tensor.Signature

	nIn := int(C.TfLiteInterpreterGetInputTensorCount(m.interp))
	sig.Inputs = make([]tensor.Descriptor, 0, nIn)
	for i := 0; i < nIn; i++ {
		t := C.TfLiteInterpreterGetInputTensor(m.interp, C.int32_t(i))
		sig.Inputs = append(sig.Inputs, describe(t, "input", i))
	}

	nOut := int(C.TfLiteInterpreterGetOutputTensorCount(m.interp))
	sig.Outputs = make([]tensor.Descriptor, 0, nOut)
	for i := 0; i < nOut; i++ {
		t := C.TfLiteInterpreterGetOutputTensor(m.interp, C.int32_t(i))
		sig.Outputs = append(sig.Outputs, describe(t, "output", i))
	}
	return sig
}

func describe(t *C.TfLiteTensor, role string, idx int) tensor.Descriptor {
	// Tensor name pointers are owned by the runtime; copy, don't free.
	name := C.GoString(C.TfLiteTensorName(t))
	if name == "" {
		name = fmt.Sprintf("%s_%d", role, idx)
	}
	rank := int(C.TfLiteTensorNumDims(t))
	shape := make([]int, 0, rank)
	for j := 0; j < rank; j++ {
		shape = append(shape, int(C.TfLiteTensorDim(t, C.int32_t(j))))
	}
	return tensor.Descriptor{Name: name, Shape: shape, Type: elemType(C.TfLiteTensorType(t))}
}

func elemType(t C.TfLiteType) tensor.ElementType {
	switch t {
	case C.kTfLiteFloat32:
		return tensor.Float32
	case C.kTfLiteFloat64:
		return tensor.Float64
	case C.kTfLiteInt32:
		return tensor.Int32
	case C.kTfLiteInt8:
		return tensor.Int8
	case C.kTfLiteUInt8:
		return tensor.Uint8
	default:
		return tensor.Unknown
	}
}

func (m *Model) Signature() tensor.Signature {
	return m.sig
}

func (m *Model) Units() device.Kind {
	return m.units
}

func (m *Model) Predict(ctx context.Context, inputs []tensor.Buffer) ([]tensor.Buffer, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrInferenceFailed, err)
	}
	if m.interp == nil {
		return nil, fmt.Errorf("%w: model is closed", engine.ErrInferenceFailed)
	}
	if len(inputs) != len(m.sig.Inputs) {
		return nil, fmt.Errorf("%w: got %d input buffers, signature declares %d",
			engine.ErrInferenceFailed, len(inputs), len(m.sig.Inputs))
	}

	for i, buf := range inputs {
		t := C.TfLiteInterpreterGetInputTensor(m.interp, C.int32_t(i))
		raw := buf.Bytes()
		if len(raw) != int(C.TfLiteTensorByteSize(t)) {
			return nil, fmt.Errorf("%w: input %q buffer is %d bytes, tensor wants %d",
				engine.ErrInferenceFailed, buf.Desc.Name, len(raw), int(C.TfLiteTensorByteSize(t)))
		}
		if len(raw) == 0 {
			continue
		}
		if status := C.TfLiteTensorCopyFromBuffer(t, unsafe.Pointer(&raw[0]), C.size_t(len(raw))); status != C.kTfLiteOk {
			return nil, fmt.Errorf("%w: copying input %q (status %d)", engine.ErrInferenceFailed, buf.Desc.Name, int(status))
		}
	}

	if status := C.TfLiteInterpreterInvoke(m.interp); status != C.kTfLiteOk {
		return nil, fmt.Errorf("%w: invoke returned status %d", engine.ErrInferenceFailed, int(status))
	}

	outputs := make([]tensor.Buffer, len(m.sig.Outputs))
	for i, desc := range m.sig.Outputs {
		t := C.TfLiteInterpreterGetOutputTensor(m.interp, C.int32_t(i))
		buf := tensor.NewBuffer(desc)
		raw := buf.Bytes()
		if len(raw) > 0 {
			if status := C.TfLiteTensorCopyToBuffer(t, unsafe.Pointer(&raw[0]), C.size_t(len(raw))); status != C.kTfLiteOk {
				return nil, fmt.Errorf("%w: copying output %q (status %d)", engine.ErrInferenceFailed, desc.Name, int(status))
			}
		}
		outputs[i] = buf
	}
	return outputs, nil
}

func (m *Model) Close() error {
	if m.interp != nil {
		C.TfLiteInterpreterDelete(m.interp)
		m.interp = nil
	}
	if m.delegateFree != nil {
		m.delegateFree()
		m.delegateFree = nil
	}
	if m.model != nil {
		C.TfLiteModelDelete(m.model)
		m.model = nil
	}
	return nil
}
