//go:build !darwin || !coreml

package coreml

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/23skdu/longbow-bowyer/internal/engine"
)

func TestStubLoadFails(t *testing.T) {
	_, err := New().Load(context.Background(), "any.mlmodelc", engine.Options{})
	assert.ErrorIs(t, err, engine.ErrLoadFailed)
}

func TestStubRoutesExtension(t *testing.T) {
	e, err := engine.ForPath("model.mlmodelc")
	assert.NoError(t, err)
	assert.Equal(t, "coreml", e.Name())
}
