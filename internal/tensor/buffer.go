package tensor

import (
	"unsafe"
)

// Buffer is a host-side tensor buffer: raw native-endian bytes plus the
// descriptor they satisfy. Runtimes copy Buffer bytes into their own
// tensor storage on predict and produce fresh Buffers on the way out;
// a Buffer never aliases runtime-owned memory.
type Buffer struct {
	Desc Descriptor
	data []byte
}

// NewBuffer allocates a zeroed buffer sized for the descriptor.
func NewBuffer(desc Descriptor) Buffer {
	return Buffer{Desc: desc, data: make([]byte, desc.ByteLen())}
}

// Bytes returns the raw backing bytes.
func (b Buffer) Bytes() []byte {
	return b.data
}

// elems caps the declared element count by what the backing bytes can hold,
// so typed views never extend past the allocation.
func (b Buffer) elems(size int) int {
	n := b.Desc.ElemCount()
	if size > 0 && len(b.data)/size < n {
		n = len(b.data) / size
	}
	return n
}

// Float32s returns a float32 view of the buffer. Only valid for Float32.
func (b Buffer) Float32s() []float32 {
	n := b.elems(4)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&b.data[0])), n)
}

// Float64s returns a float64 view of the buffer. Only valid for Float64.
func (b Buffer) Float64s() []float64 {
	n := b.elems(8)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*float64)(unsafe.Pointer(&b.data[0])), n)
}

// Int32s returns an int32 view of the buffer. Only valid for Int32.
func (b Buffer) Int32s() []int32 {
	n := b.elems(4)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int32)(unsafe.Pointer(&b.data[0])), n)
}

// Int8s returns an int8 view of the buffer. Only valid for Int8.
func (b Buffer) Int8s() []int8 {
	n := b.elems(1)
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*int8)(unsafe.Pointer(&b.data[0])), n)
}

// Uint8s returns a uint8 view of the buffer. Only valid for Uint8.
func (b Buffer) Uint8s() []uint8 {
	return b.data[:b.elems(1)]
}
