package tensor

import (
	"errors"
	"fmt"
	"math"
)

// Marshaling errors. The bridge surfaces these to callers as typed
// (code, message) pairs; nothing here is fatal to other loaded models.
var (
	ErrInputMissing    = errors.New("input missing")
	ErrShapeMismatch   = errors.New("shape mismatch")
	ErrUnsupportedType = errors.New("unsupported element type")
)

// Encode converts a caller-supplied name -> numeric sequence mapping into
// host buffers matching the declared input signature, in declaration order.
// Numeric widths are converted best-effort: values are clamped to the
// representable range of the target type rather than rejected.
// Caller data is never mutated and extra entries in the map are ignored.
func Encode(inputs map[string][]float64, sig Signature) ([]Buffer, error) {
	bufs := make([]Buffer, 0, len(sig.Inputs))
	for _, desc := range sig.Inputs {
		seq, ok := inputs[desc.Name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInputMissing, desc.Name)
		}
		if !desc.Type.Numeric() {
			return nil, fmt.Errorf("%w: input %q is %s", ErrUnsupportedType, desc.Name, desc.Type)
		}
		if want := desc.ElemCount(); len(seq) != want {
			return nil, fmt.Errorf("%w: input %q has %d elements, shape %v wants %d",
				ErrShapeMismatch, desc.Name, len(seq), desc.Shape, want)
		}

		buf := NewBuffer(desc)
		buf.Fill(seq)
		bufs = append(bufs, buf)
	}
	return bufs, nil
}

// Decode converts runtime output buffers back into plain numeric
// sequences keyed by tensor name. Outputs whose element type cannot be
// decoded are omitted from the map entirely; the signature already told
// the caller the type. Reads never run past the declared element count.
func Decode(outputs []Buffer) map[string][]float64 {
	res := make(map[string][]float64, len(outputs))
	for _, buf := range outputs {
		if !buf.Desc.Type.Numeric() {
			continue
		}
		res[buf.Desc.Name] = buf.Float64Seq()
	}
	return res
}

// Fill copies a numeric sequence into the buffer, converting to the
// buffer's element type. Values outside the representable range clamp;
// excess source elements are ignored. Unknown-typed buffers stay empty.
func (b Buffer) Fill(seq []float64) {
	switch b.Desc.Type {
	case Float32:
		dst := b.Float32s()
		for i := range dst {
			dst[i] = float32(seq[i])
		}
	case Float64:
		copy(b.Float64s(), seq)
	case Int32:
		dst := b.Int32s()
		for i := range dst {
			dst[i] = clampInt32(seq[i])
		}
	case Int8:
		dst := b.Int8s()
		for i := range dst {
			dst[i] = int8(clamp(seq[i], math.MinInt8, math.MaxInt8))
		}
	case Uint8:
		dst := b.Uint8s()
		for i := range dst {
			dst[i] = uint8(clamp(seq[i], 0, math.MaxUint8))
		}
	}
}

// Float64Seq converts the buffer's elements into a float64 sequence, the
// dynamic form used across the marshaling boundary. Unknown-typed
// buffers yield nil.
func (b Buffer) Float64Seq() []float64 {
	switch b.Desc.Type {
	case Float32:
		src := b.Float32s()
		seq := make([]float64, len(src))
		for i, v := range src {
			seq[i] = float64(v)
		}
		return seq
	case Float64:
		return append([]float64(nil), b.Float64s()...)
	case Int32:
		src := b.Int32s()
		seq := make([]float64, len(src))
		for i, v := range src {
			seq[i] = float64(v)
		}
		return seq
	case Int8:
		src := b.Int8s()
		seq := make([]float64, len(src))
		for i, v := range src {
			seq[i] = float64(v)
		}
		return seq
	case Uint8:
		src := b.Uint8s()
		seq := make([]float64, len(src))
		for i, v := range src {
			seq[i] = float64(v)
		}
		return seq
	default:
		return nil
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt32(v float64) int32 {
	if v < math.MinInt32 {
		return math.MinInt32
	}
	if v > math.MaxInt32 {
		return math.MaxInt32
	}
	return int32(v)
}
