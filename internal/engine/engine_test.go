package engine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/longbow-bowyer/internal/device"
)

type fakeEngine struct {
	name string
}

func (e *fakeEngine) Name() string                  { return e.name }
func (e *fakeEngine) Capability() device.Capability { return device.Capability{} }
func (e *fakeEngine) Load(ctx context.Context, path string, opts Options) (Model, error) {
	return nil, ErrLoadFailed
}

func TestRegisterAndForPath(t *testing.T) {
	a := &fakeEngine{name: "a"}
	Register(a, ".fakea")

	got, err := ForPath("models/net.fakea")
	require.NoError(t, err)
	assert.Same(t, a, got.(*fakeEngine))

	// Extension matching is case-insensitive.
	got, err = ForPath("NET.FAKEA")
	require.NoError(t, err)
	assert.Same(t, a, got.(*fakeEngine))

	_, err = ForPath("net.unregistered")
	assert.ErrorIs(t, err, ErrLoadFailed)
	_, err = ForPath("no-extension")
	assert.ErrorIs(t, err, ErrLoadFailed)
}

func TestLaterRegistrationWins(t *testing.T) {
	first := &fakeEngine{name: "first"}
	second := &fakeEngine{name: "second"}
	Register(first, ".fakeb")
	Register(second, ".fakeb")

	got, err := ForPath("net.fakeb")
	require.NoError(t, err)
	assert.Same(t, second, got.(*fakeEngine))
}

func TestExtensionsSorted(t *testing.T) {
	Register(&fakeEngine{name: "c"}, ".zzz", ".aaa")
	exts := Extensions()
	assert.Contains(t, exts, ".zzz")
	assert.Contains(t, exts, ".aaa")
	for i := 1; i < len(exts); i++ {
		assert.LessOrEqual(t, exts[i-1], exts[i])
	}
}
