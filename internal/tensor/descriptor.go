package tensor

// ElementType identifies the element type of a tensor buffer.
// Native runtime types that have no counterpart here map to Unknown;
// introspection never fails on an unrecognized type.
type ElementType int

const (
	Unknown ElementType = iota
	Float32
	Float64
	Int32
	Int8
	Uint8
)

// String returns the wire name of the element type.
func (t ElementType) String() string {
	switch t {
	case Float32:
		return "float32"
	case Float64:
		return "float64"
	case Int32:
		return "int32"
	case Int8:
		return "int8"
	case Uint8:
		return "uint8"
	default:
		return "unknown"
	}
}

// Size returns the element size in bytes, 0 for Unknown.
func (t ElementType) Size() int {
	switch t {
	case Float32, Int32:
		return 4
	case Float64:
		return 8
	case Int8, Uint8:
		return 1
	default:
		return 0
	}
}

// Numeric reports whether values of this type can be marshaled from a
// plain numeric sequence.
func (t ElementType) Numeric() bool {
	return t != Unknown
}

// Descriptor describes one declared model input or output tensor.
// Immutable once produced by a runtime's introspection.
type Descriptor struct {
	Name  string
	Shape []int
	Type  ElementType
}

// ElemCount returns the number of elements implied by the shape.
// An empty shape denotes a scalar (one element). A zero dimension
// yields zero elements.
func (d Descriptor) ElemCount() int {
	n := 1
	for _, dim := range d.Shape {
		n *= dim
	}
	return n
}

// ByteLen returns the buffer size in bytes required for this descriptor.
func (d Descriptor) ByteLen() int {
	return d.ElemCount() * d.Type.Size()
}

// Signature is the ordered input/output tensor contract of a loaded model.
// Derived once at load time and cached for the model's lifetime.
type Signature struct {
	Inputs  []Descriptor
	Outputs []Descriptor
}

// Input returns the input descriptor with the given name.
func (s Signature) Input(name string) (Descriptor, bool) {
	for _, d := range s.Inputs {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Output returns the output descriptor with the given name.
func (s Signature) Output(name string) (Descriptor, bool) {
	for _, d := range s.Outputs {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}
