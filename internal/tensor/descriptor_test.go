package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestElemCount(t *testing.T) {
	tests := []struct {
		name  string
		shape []int
		want  int
	}{
		{"vector", []int{4}, 4},
		{"matrix", []int{2, 3}, 6},
		{"rank3", []int{2, 3, 4}, 24},
		{"scalar", nil, 1},
		{"empty_dim", []int{0, 5}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Descriptor{Name: "x", Shape: tt.shape, Type: Float32}
			assert.Equal(t, tt.want, d.ElemCount())
		})
	}
}

func TestByteLen(t *testing.T) {
	assert.Equal(t, 24, Descriptor{Shape: []int{6}, Type: Float32}.ByteLen())
	assert.Equal(t, 48, Descriptor{Shape: []int{6}, Type: Float64}.ByteLen())
	assert.Equal(t, 6, Descriptor{Shape: []int{6}, Type: Uint8}.ByteLen())
	assert.Equal(t, 0, Descriptor{Shape: []int{6}, Type: Unknown}.ByteLen())
}

func TestSignatureLookup(t *testing.T) {
	sig := Signature{
		Inputs:  []Descriptor{{Name: "a", Shape: []int{1}, Type: Float32}},
		Outputs: []Descriptor{{Name: "b", Shape: []int{2}, Type: Float32}},
	}

	d, ok := sig.Input("a")
	assert.True(t, ok)
	assert.Equal(t, "a", d.Name)

	_, ok = sig.Input("b")
	assert.False(t, ok)

	d, ok = sig.Output("b")
	assert.True(t, ok)
	assert.Equal(t, []int{2}, d.Shape)
}

func TestElementTypeString(t *testing.T) {
	for _, et := range []ElementType{Float32, Float64, Int32, Int8, Uint8} {
		assert.NotEqual(t, "unknown", et.String())
		assert.True(t, et.Numeric())
		assert.Greater(t, et.Size(), 0)
	}
	assert.Equal(t, "unknown", Unknown.String())
	assert.False(t, Unknown.Numeric())
	assert.Equal(t, 0, Unknown.Size())
}
