//go:build darwin && coreml

// Package coreml binds Core ML through a small Objective-C shim. Built
// with -tags coreml on macOS; other builds get the stub.
package coreml

/*
#cgo CFLAGS: -x objective-c -fobjc-arc
#cgo LDFLAGS: -framework Foundation -framework CoreML
#include <stdlib.h>
#include "coreml_bridge.h"
*/
import "C"

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

func init() {
	engine.Register(New(), ".mlmodelc")
}

var _ engine.Engine = (*Engine)(nil)
var _ engine.Model = (*Model)(nil)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "coreml"
}

// Core ML schedules across CPU, GPU and the Neural Engine itself; every
// accelerated path is constructible here.
func (e *Engine) Capability() device.Capability {
	return device.Capability{GPU: true, NeuralEngine: true}
}

func computeUnits(k device.Kind) C.int {
	switch k {
	case device.CPUOnly:
		return C.BW_COMPUTE_CPU
	case device.CPUAndGPU:
		return C.BW_COMPUTE_CPU_GPU
	case device.CPUAndNeuralEngine:
		return C.BW_COMPUTE_CPU_ANE
	default:
		return C.BW_COMPUTE_ALL
	}
}

func takeError(cerr *C.bw_error) string {
	if cerr.message == nil {
		return "unknown CoreML error"
	}
	msg := C.GoString(cerr.message)
	C.free(unsafe.Pointer(cerr.message))
	cerr.message = nil
	return msg
}

func (e *Engine) Load(ctx context.Context, path string, opts engine.Options) (engine.Model, error) {
	cPath := C.CString(path)
	defer C.free(unsafe.Pointer(cPath))

	var cerr C.bw_error
	handle := C.bw_model_load(cPath, computeUnits(opts.Units), &cerr)
	if handle == nil {
		return nil, fmt.Errorf("%w: %s: %s", engine.ErrLoadFailed, path, takeError(&cerr))
	}

	m := &Model{handle: handle, units: opts.Units}
	m.sig = tensor.Signature{
		Inputs:  m.describeAll(0),
		Outputs: m.describeAll(1),
	}
	return m, nil
}

// Model wraps one MLModel handle. The registry serializes Predict and
// Close per model.
type Model struct {
	handle C.bw_model_t
	units  device.Kind
	sig    tensor.Signature
}

func (m *Model) describeAll(output C.int) []tensor.Descriptor {
	count := int(C.bw_model_feature_count(m.handle, output))
	descs := make([]tensor.Descriptor, 0, count)
	for i := 0; i < count; i++ {
		cName := C.bw_model_feature_name(m.handle, output, C.int(i))
		name := C.GoString(cName)
		C.free(unsafe.Pointer(cName))
		if name == "" {
			if output == 1 {
				name = fmt.Sprintf("output_%d", i)
			} else {
				name = fmt.Sprintf("input_%d", i)
			}
		}

		rank := int(C.bw_model_feature_rank(m.handle, output, C.int(i)))
		shape := make([]int, rank)
		if rank > 0 {
			dims := make([]C.int64_t, rank)
			C.bw_model_feature_shape(m.handle, output, C.int(i), &dims[0])
			for j, d := range dims {
				shape[j] = int(d)
			}
		}

		descs = append(descs, tensor.Descriptor{
			Name:  name,
			Shape: shape,
			Type:  elemType(C.bw_model_feature_dtype(m.handle, output, C.int(i))),
		})
	}
	return descs
}

func elemType(code C.int) tensor.ElementType {
	switch code {
	case C.BW_DTYPE_FLOAT32:
		return tensor.Float32
	case C.BW_DTYPE_FLOAT64:
		return tensor.Float64
	case C.BW_DTYPE_INT32:
		return tensor.Int32
	default:
		return tensor.Unknown
	}
}

func dtypeCode(t tensor.ElementType) C.int {
	switch t {
	case tensor.Float64:
		return C.BW_DTYPE_FLOAT64
	case tensor.Int32:
		return C.BW_DTYPE_INT32
	default:
		return C.BW_DTYPE_FLOAT32
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
	if m.handle == nil {
		return nil, fmt.Errorf("%w: model is closed", engine.ErrInferenceFailed)
	}
	if len(inputs) != len(m.sig.Inputs) {
		return nil, fmt.Errorf("%w: got %d input buffers, signature declares %d",
			engine.ErrInferenceFailed, len(inputs), len(m.sig.Inputs))
	}

	count := len(inputs)
	names := make([]*C.char, count)
	data := make([]unsafe.Pointer, count)
	dtypes := make([]C.int, count)
	ranks := make([]C.int, count)
	shapes := make([]*C.int64_t, count)
	shapeStore := make([][]C.int64_t, count)
	defer func() {
		for _, n := range names {
			if n != nil {
				C.free(unsafe.Pointer(n))
			}
		}
	}()

	for i, buf := range inputs {
		names[i] = C.CString(buf.Desc.Name)
		dtypes[i] = dtypeCode(buf.Desc.Type)
		ranks[i] = C.int(len(buf.Desc.Shape))
		dims := make([]C.int64_t, len(buf.Desc.Shape))
		for j, d := range buf.Desc.Shape {
			dims[j] = C.int64_t(d)
		}
		shapeStore[i] = dims
		if len(dims) > 0 {
			shapes[i] = &dims[0]
		}
		raw := buf.Bytes()
		if len(raw) > 0 {
			data[i] = unsafe.Pointer(&raw[0])
		}
	}

	var cerr C.bw_error
	result := C.bw_predict(m.handle, (**C.char)(unsafe.Pointer(&names[0])),
		&data[0], &dtypes[0], (**C.int64_t)(unsafe.Pointer(&shapes[0])), &ranks[0],
		C.int(count), &cerr)
	if result == nil {
		return nil, fmt.Errorf("%w: %s", engine.ErrInferenceFailed, takeError(&cerr))
	}
	defer C.bw_result_free(result)

	outputs := make([]tensor.Buffer, len(m.sig.Outputs))
	for i, desc := range m.sig.Outputs {
		buf := tensor.NewBuffer(desc)
		raw := buf.Bytes()
		if len(raw) > 0 {
			cName := C.CString(desc.Name)
			n := C.bw_result_copy(result, cName, unsafe.Pointer(&raw[0]),
				C.long(desc.ElemCount()), dtypeCode(desc.Type))
			C.free(unsafe.Pointer(cName))
			if n < 0 {
				return nil, fmt.Errorf("%w: output %q missing from prediction", engine.ErrInferenceFailed, desc.Name)
			}
		}
		outputs[i] = buf
	}
	return outputs, nil
}

func (m *Model) Close() error {
	if m.handle != nil {
		C.bw_model_free(m.handle)
		m.handle = nil
	}
	return nil
}
