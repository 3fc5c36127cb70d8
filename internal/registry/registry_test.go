package registry

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/assets"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/engine/simplego"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	root := t.TempDir()
	def := simplego.ModelDef{
		Inputs:  []tensor.Descriptor{{Name: "x", Shape: []int{2}, Type: tensor.Float32}},
		Outputs: []tensor.Descriptor{{Name: "y", Shape: []int{2}, Type: tensor.Float32}},
		Layers: []simplego.Layer{
			{In: 2, Out: 2, Activation: simplego.ActIdentity, W: []float32{1, 0, 0, 1}, B: []float32{0, 0}},
		},
	}
	require.NoError(t, simplego.WriteModelFile(filepath.Join(root, "demo.lbow"), def))
	return New(assets.NewDirResolver(root), 0)
}

func TestLoadAssignsFreshIDs(t *testing.T) {
	reg := newTestRegistry(t)

	a, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)
	b, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	assert.NotEqual(t, a, b, "loading the same asset twice yields independent instances")
	assert.Equal(t, 2, reg.Count())
}

func TestLoadErrors(t *testing.T) {
	reg := newTestRegistry(t)

	_, err := reg.Load(context.Background(), "missing.lbow", device.CPUOnly)
	assert.ErrorIs(t, err, assets.ErrNotFound)

	// Known asset, no runtime registered for the extension.
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "weights.bin"), []byte("x"), 0o644))
	reg2 := New(assets.NewDirResolver(root), 0)
	_, err = reg2.Load(context.Background(), "weights.bin", device.CPUOnly)
	assert.ErrorIs(t, err, engine.ErrLoadFailed)
}

func TestAcceleratorFallback(t *testing.T) {
	reg := newTestRegistry(t)

	// The pure Go runtime has no accelerated paths; any accelerated
	// request degrades to CPU silently.
	id, err := reg.Load(context.Background(), "demo.lbow", device.All)
	require.NoError(t, err)

	h, err := reg.Handle(id)
	require.NoError(t, err)
	assert.Equal(t, device.CPUOnly, h.Units())
}

func TestSignatureLookup(t *testing.T) {
	reg := newTestRegistry(t)
	id, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	sig, err := reg.Signature(id)
	require.NoError(t, err)
	require.Len(t, sig.Inputs, 1)
	assert.Equal(t, "x", sig.Inputs[0].Name)

	_, err = reg.Signature("nonexistent")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestPredictThroughHandle(t *testing.T) {
	reg := newTestRegistry(t)
	id, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	h, err := reg.Handle(id)
	require.NoError(t, err)

	in, err := tensor.Encode(map[string][]float64{"x": {4, 5}}, h.Signature())
	require.NoError(t, err)

	out, err := h.Predict(context.Background(), in)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{4, 5}, tensor.Decode(out)["y"], 1e-6)
}

func TestDisposeIdempotent(t *testing.T) {
	reg := newTestRegistry(t)
	id, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	var hookCalls int
	reg.SetDisposeHook(func(string) { hookCalls++ })

	reg.Dispose(id)
	reg.Dispose(id)
	reg.Dispose("never-existed")

	assert.Equal(t, 1, hookCalls)
	assert.Equal(t, 0, reg.Count())
}

func TestPredictAfterDispose(t *testing.T) {
	reg := newTestRegistry(t)
	id, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	h, err := reg.Handle(id)
	require.NoError(t, err)
	sig := h.Signature()

	reg.Dispose(id)

	in, err := tensor.Encode(map[string][]float64{"x": {1, 2}}, sig)
	require.NoError(t, err)
	_, err = h.Predict(context.Background(), in)
	assert.ErrorIs(t, err, ErrModelNotFound)

	_, err = reg.Handle(id)
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestDisposeLeavesOthersLoaded(t *testing.T) {
	reg := newTestRegistry(t)
	a, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)
	b, err := reg.Load(context.Background(), "demo.lbow", device.CPUOnly)
	require.NoError(t, err)

	reg.Dispose(a)

	h, err := reg.Handle(b)
	require.NoError(t, err)
	in, err := tensor.Encode(map[string][]float64{"x": {1, 2}}, h.Signature())
	require.NoError(t, err)
	_, err = h.Predict(context.Background(), in)
	assert.NoError(t, err)
}
