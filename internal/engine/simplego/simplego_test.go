package simplego

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

// identityDef builds a 2-in 2-out single-layer network whose weight
// matrix is the identity, so outputs mirror inputs.
func identityDef() ModelDef {
	return ModelDef{
		Inputs:  []tensor.Descriptor{{Name: "x", Shape: []int{2}, Type: tensor.Float32}},
		Outputs: []tensor.Descriptor{{Name: "y", Shape: []int{2}, Type: tensor.Float32}},
		Layers: []Layer{
			{In: 2, Out: 2, Activation: ActIdentity, W: []float32{1, 0, 0, 1}, B: []float32{0, 0}},
		},
	}
}

func writeTemp(t *testing.T, def ModelDef) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.lbow")
	require.NoError(t, WriteModelFile(path, def))
	return path
}

func loadTemp(t *testing.T, def ModelDef) engine.Model {
	t.Helper()
	m, err := New().Load(context.Background(), writeTemp(t, def), engine.Options{Units: device.CPUOnly})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestFormatRoundTrip(t *testing.T) {
	def := identityDef()
	var buf bytes.Buffer
	require.NoError(t, WriteModel(&buf, def))

	got, err := readModel(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, def.Inputs, got.Inputs)
	assert.Equal(t, def.Outputs, got.Outputs)
	require.Len(t, got.Layers, 1)
	assert.Equal(t, def.Layers[0].W, got.Layers[0].W)
	assert.Equal(t, def.Layers[0].B, got.Layers[0].B)
}

func TestLoadRejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.lbow")
	require.NoError(t, os.WriteFile(path, []byte("not a model"), 0o644))

	_, err := New().Load(context.Background(), path, engine.Options{})
	assert.ErrorIs(t, err, engine.ErrLoadFailed)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := New().Load(context.Background(), filepath.Join(t.TempDir(), "nope.lbow"), engine.Options{})
	assert.ErrorIs(t, err, engine.ErrLoadFailed)
}

func TestLoadRejectsInconsistentWidths(t *testing.T) {
	def := identityDef()
	def.Layers[0].In = 3
	def.Layers[0].W = []float32{1, 0, 0, 1, 0, 0} // 3x2, but input declares 2 elements

	var buf bytes.Buffer
	require.NoError(t, WriteModel(&buf, def))
	_, err := readModel(bytes.NewReader(buf.Bytes()))
	assert.Error(t, err)
}

func TestPredictIdentity(t *testing.T) {
	m := loadTemp(t, identityDef())

	in, err := tensor.Encode(map[string][]float64{"x": {1.5, -2.5}}, m.Signature())
	require.NoError(t, err)

	out, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "y", out[0].Desc.Name)
	assert.InDeltaSlice(t, []float64{1.5, -2.5}, tensor.Decode(out)["y"], 1e-6)
}

func TestPredictReLU(t *testing.T) {
	def := identityDef()
	def.Layers[0].Activation = ActReLU
	m := loadTemp(t, def)

	in, err := tensor.Encode(map[string][]float64{"x": {3, -4}}, m.Signature())
	require.NoError(t, err)

	out, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{3, 0}, tensor.Decode(out)["y"], 1e-6)
}

func TestPredictDeterministic(t *testing.T) {
	def := ModelDef{
		Inputs:  []tensor.Descriptor{{Name: "x", Shape: []int{2}, Type: tensor.Float32}},
		Outputs: []tensor.Descriptor{{Name: "y", Shape: []int{1}, Type: tensor.Float32}},
		Layers: []Layer{
			{In: 2, Out: 1, Activation: ActTanh, W: []float32{0.5, -0.25}, B: []float32{0.1}},
		},
	}
	m := loadTemp(t, def)

	in, err := tensor.Encode(map[string][]float64{"x": {1, 2}}, m.Signature())
	require.NoError(t, err)

	first, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	second, err := m.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, tensor.Decode(first), tensor.Decode(second))
}

func TestPredictAfterClose(t *testing.T) {
	m := loadTemp(t, identityDef())
	in, err := tensor.Encode(map[string][]float64{"x": {1, 2}}, m.Signature())
	require.NoError(t, err)

	require.NoError(t, m.Close())
	_, err = m.Predict(context.Background(), in)
	assert.ErrorIs(t, err, engine.ErrInferenceFailed)
}

func TestPredictWrongBufferCount(t *testing.T) {
	m := loadTemp(t, identityDef())
	_, err := m.Predict(context.Background(), nil)
	assert.ErrorIs(t, err, engine.ErrInferenceFailed)
}

func TestSignatureStable(t *testing.T) {
	m := loadTemp(t, identityDef())
	assert.Equal(t, m.Signature(), m.Signature())
	assert.Equal(t, device.CPUOnly, m.Units())
}
