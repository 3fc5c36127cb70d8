package simplego

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

// .lbow container: a self-describing dense feed-forward network.
//
//	magic "LBOW" | version u32
//	input descriptor table | output descriptor table
//	layer count u32 | layers: in u32, out u32, activation u8,
//	    weights in*out f32 (row-major), bias out f32
//
// Descriptor entries are nameLen u32, name, dtype u8, rank u32, dims u32...
// Everything is little-endian. The descriptor tables are the runtime
// metadata the signature is introspected from.

var magic = [4]byte{'L', 'B', 'O', 'W'}

const formatVersion = 1

// Activation selects the per-layer nonlinearity.
type Activation uint8

const (
	ActIdentity Activation = iota
	ActReLU
	ActTanh
)

// Layer is one dense layer: y = act(x*W + b).
type Layer struct {
	In, Out    int
	Activation Activation
	W          []float32 // In*Out, row-major
	B          []float32 // Out
}

// ModelDef is the parsed content of a .lbow file.
type ModelDef struct {
	Inputs  []tensor.Descriptor
	Outputs []tensor.Descriptor
	Layers  []Layer
}

// dtype codes are stable on the wire; unrecognized codes introspect as
// Unknown rather than failing the load.
func dtypeCode(t tensor.ElementType) uint8 {
	switch t {
	case tensor.Float32:
		return 1
	case tensor.Float64:
		return 2
	case tensor.Int32:
		return 3
	case tensor.Int8:
		return 4
	case tensor.Uint8:
		return 5
	default:
		return 0
	}
}

func dtypeFromCode(c uint8) tensor.ElementType {
	switch c {
	case 1:
		return tensor.Float32
	case 2:
		return tensor.Float64
	case 3:
		return tensor.Int32
	case 4:
		return tensor.Int8
	case 5:
		return tensor.Uint8
	default:
		return tensor.Unknown
	}
}

// WriteModel serializes a model definition. Used by the packer script and
// by tests; the daemon itself only reads.
func WriteModel(w io.Writer, def ModelDef) error {
	if _, err := w.Write(magic[:]); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(formatVersion)); err != nil {
		return err
	}
	if err := writeDescriptors(w, def.Inputs); err != nil {
		return err
	}
	if err := writeDescriptors(w, def.Outputs); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(def.Layers))); err != nil {
		return err
	}
	for i, l := range def.Layers {
		if len(l.W) != l.In*l.Out || len(l.B) != l.Out {
			return fmt.Errorf("layer %d: weight/bias sizes do not match %dx%d", i, l.In, l.Out)
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(l.In)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(l.Out)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint8(l.Activation)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, l.W); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, l.B); err != nil {
			return err
		}
	}
	return nil
}

// WriteModelFile writes a .lbow file.
func WriteModelFile(path string, def ModelDef) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteModel(f, def); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writeDescriptors(w io.Writer, descs []tensor.Descriptor) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(descs))); err != nil {
		return err
	}
	for _, d := range descs {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(d.Name))); err != nil {
			return err
		}
		if _, err := w.Write([]byte(d.Name)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, dtypeCode(d.Type)); err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(d.Shape))); err != nil {
			return err
		}
		for _, dim := range d.Shape {
			if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
				return err
			}
		}
	}
	return nil
}

const (
	maxNameLen = 1 << 10
	maxRank    = 16
	maxCount   = 1 << 16
)

func readModel(r io.Reader) (*ModelDef, error) {
	var m [4]byte
	if _, err := io.ReadFull(r, m[:]); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if m != magic {
		return nil, fmt.Errorf("not a .lbow model (magic %q)", m[:])
	}
	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, err
	}
	if version != formatVersion {
		return nil, fmt.Errorf("unsupported format version %d", version)
	}

	def := &ModelDef{}
	var err error
	if def.Inputs, err = readDescriptors(r); err != nil {
		return nil, fmt.Errorf("reading input table: %w", err)
	}
	if def.Outputs, err = readDescriptors(r); err != nil {
		return nil, fmt.Errorf("reading output table: %w", err)
	}

	var layerCount uint32
	if err := binary.Read(r, binary.LittleEndian, &layerCount); err != nil {
		return nil, err
	}
	if layerCount > maxCount {
		return nil, fmt.Errorf("implausible layer count %d", layerCount)
	}
	def.Layers = make([]Layer, layerCount)
	for i := range def.Layers {
		var in, out uint32
		var act uint8
		if err := binary.Read(r, binary.LittleEndian, &in); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &out); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if err := binary.Read(r, binary.LittleEndian, &act); err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
		if in == 0 || out == 0 || in > maxCount || out > maxCount {
			return nil, fmt.Errorf("layer %d: implausible dims %dx%d", i, in, out)
		}
		l := Layer{In: int(in), Out: int(out), Activation: Activation(act)}
		l.W = make([]float32, l.In*l.Out)
		if err := binary.Read(r, binary.LittleEndian, l.W); err != nil {
			return nil, fmt.Errorf("layer %d weights: %w", i, err)
		}
		l.B = make([]float32, l.Out)
		if err := binary.Read(r, binary.LittleEndian, l.B); err != nil {
			return nil, fmt.Errorf("layer %d bias: %w", i, err)
		}
		def.Layers[i] = l
	}

	if err := def.validate(); err != nil {
		return nil, err
	}
	return def, nil
}

func readDescriptors(r io.Reader) ([]tensor.Descriptor, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count > maxCount {
		return nil, fmt.Errorf("implausible descriptor count %d", count)
	}
	descs := make([]tensor.Descriptor, count)
	for i := range descs {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		if nameLen > maxNameLen {
			return nil, fmt.Errorf("implausible name length %d", nameLen)
		}
		name := make([]byte, nameLen)
		if _, err := io.ReadFull(r, name); err != nil {
			return nil, err
		}
		var code uint8
		if err := binary.Read(r, binary.LittleEndian, &code); err != nil {
			return nil, err
		}
		var rank uint32
		if err := binary.Read(r, binary.LittleEndian, &rank); err != nil {
			return nil, err
		}
		if rank > maxRank {
			return nil, fmt.Errorf("implausible rank %d", rank)
		}
		shape := make([]int, rank)
		for j := range shape {
			var dim uint32
			if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
				return nil, err
			}
			shape[j] = int(dim)
		}
		descs[i] = tensor.Descriptor{Name: string(name), Shape: shape, Type: dtypeFromCode(code)}
	}
	return descs, nil
}

func (def *ModelDef) validate() error {
	if len(def.Layers) == 0 {
		return fmt.Errorf("model has no layers")
	}
	inElems := 0
	for _, d := range def.Inputs {
		inElems += d.ElemCount()
	}
	outElems := 0
	for _, d := range def.Outputs {
		outElems += d.ElemCount()
	}
	if def.Layers[0].In != inElems {
		return fmt.Errorf("first layer takes %d features, input table declares %d", def.Layers[0].In, inElems)
	}
	for i := 1; i < len(def.Layers); i++ {
		if def.Layers[i].In != def.Layers[i-1].Out {
			return fmt.Errorf("layer %d takes %d features, layer %d produces %d",
				i, def.Layers[i].In, i-1, def.Layers[i-1].Out)
		}
	}
	if last := def.Layers[len(def.Layers)-1]; last.Out != outElems {
		return fmt.Errorf("last layer produces %d features, output table declares %d", last.Out, outElems)
	}
	return nil
}
