// Package simplego is the pure Go inference runtime. It executes the
// dense feed-forward .lbow format with gonum and is always registered,
// so the bridge works on any platform without cgo. The accelerated
// runtimes (litert, coreml) shadow it only for their own file types.
package simplego

import (
	"context"
	"fmt"
	"math"
	"os"

	"gonum.org/v1/gonum/mat"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

func init() {
	engine.Register(New(), ".lbow")
}

// ensure interface compliance
var _ engine.Engine = (*Engine)(nil)
var _ engine.Model = (*Model)(nil)

type Engine struct{}

func New() *Engine {
	return &Engine{}
}

func (e *Engine) Name() string {
	return "simplego"
}

// Capability is empty: this runtime only ever executes on CPU, so any
// accelerated request degrades before it reaches Load.
func (e *Engine) Capability() device.Capability {
	return device.Capability{}
}

func (e *Engine) Load(ctx context.Context, path string, opts engine.Options) (engine.Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrLoadFailed, err)
	}
	defer func() { _ = f.Close() }()

	def, err := readModel(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", engine.ErrLoadFailed, path, err)
	}

	m := &Model{
		sig:   tensor.Signature{Inputs: def.Inputs, Outputs: def.Outputs},
		units: opts.Units,
	}
	// Widen weights to float64 once so Predict multiplies without
	// per-call conversion.
	m.layers = make([]denseLayer, len(def.Layers))
	for i, l := range def.Layers {
		w := make([]float64, len(l.W))
		for j, v := range l.W {
			w[j] = float64(v)
		}
		b := make([]float64, len(l.B))
		for j, v := range l.B {
			b[j] = float64(v)
		}
		m.layers[i] = denseLayer{
			w:   mat.NewDense(l.In, l.Out, w),
			b:   b,
			act: l.Activation,
		}
	}
	return m, nil
}

type denseLayer struct {
	w   *mat.Dense
	b   []float64
	act Activation
}

// Model is a loaded .lbow network. The registry serializes Predict and
// Close per model; Model itself keeps no mutable state between calls.
type Model struct {
	sig    tensor.Signature
	units  device.Kind
	layers []denseLayer
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
	if m.layers == nil {
		return nil, fmt.Errorf("%w: model is closed", engine.ErrInferenceFailed)
	}
	if len(inputs) != len(m.sig.Inputs) {
		return nil, fmt.Errorf("%w: got %d input buffers, signature declares %d",
			engine.ErrInferenceFailed, len(inputs), len(m.sig.Inputs))
	}

	// Flatten the input buffers into one feature vector in declaration
	// order; the format validated the total width at load time.
	vec := make([]float64, 0, m.layers[0].w.RawMatrix().Rows)
	for _, buf := range inputs {
		vec = append(vec, buf.Float64Seq()...)
	}
	if len(vec) != m.layers[0].w.RawMatrix().Rows {
		return nil, fmt.Errorf("%w: input buffers carry %d features, model takes %d",
			engine.ErrInferenceFailed, len(vec), m.layers[0].w.RawMatrix().Rows)
	}

	x := mat.NewDense(1, len(vec), vec)
	for _, l := range m.layers {
		_, out := l.w.Dims()
		y := mat.NewDense(1, out, nil)
		y.Mul(x, l.w)
		row := y.RawMatrix().Data
		for j := range row {
			row[j] += l.b[j]
		}
		switch l.act {
		case ActReLU:
			for j, v := range row {
				if v < 0 {
					row[j] = 0
				}
			}
		case ActTanh:
			for j, v := range row {
				row[j] = math.Tanh(v)
			}
		}
		x = y
	}

	// Split the final vector across the declared outputs, converting to
	// each declared element type.
	flat := x.RawMatrix().Data
	outputs := make([]tensor.Buffer, len(m.sig.Outputs))
	off := 0
	for i, desc := range m.sig.Outputs {
		n := desc.ElemCount()
		buf := tensor.NewBuffer(desc)
		buf.Fill(flat[off : off+n])
		outputs[i] = buf
		off += n
	}
	return outputs, nil
}

func (m *Model) Close() error {
	m.layers = nil
	return nil
}
