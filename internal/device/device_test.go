package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSelect_CPURequestAlwaysHonored(t *testing.T) {
	full := Capability{GPU: true, NeuralEngine: true}
	assert.Equal(t, CPUOnly, Select(CPUOnly, full))
	assert.Equal(t, CPUOnly, Select(CPUOnly, Capability{}))
}

func TestSelect_Fallback(t *testing.T) {
	none := Capability{}

	tests := []struct {
		name      string
		requested Kind
		cap       Capability
		want      Kind
	}{
		{"gpu available", CPUAndGPU, Capability{GPU: true}, CPUAndGPU},
		{"gpu missing", CPUAndGPU, none, CPUOnly},
		{"ane available", CPUAndNeuralEngine, Capability{NeuralEngine: true}, CPUAndNeuralEngine},
		{"ane missing", CPUAndNeuralEngine, Capability{GPU: true}, CPUOnly},
		{"all with everything", All, Capability{GPU: true, NeuralEngine: true}, All},
		{"all degrades to ane", All, Capability{NeuralEngine: true}, CPUAndNeuralEngine},
		{"all degrades to gpu", All, Capability{GPU: true}, CPUAndGPU},
		{"all degrades to cpu", All, none, CPUOnly},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Select(tt.requested, tt.cap))
		})
	}
}

func TestParseKind(t *testing.T) {
	for wire, want := range map[string]Kind{
		"cpu":                        CPUOnly,
		"cpuOnly":                    CPUOnly,
		"cpu_gpu":                    CPUAndGPU,
		"cpuAndGpu":                  CPUAndGPU,
		"cpuAndDedicatedAccelerator": CPUAndNeuralEngine,
		"all":                        All,
	} {
		k, err := ParseKind(wire)
		assert.NoError(t, err)
		assert.Equal(t, want, k)
	}

	_, err := ParseKind("quantum")
	assert.Error(t, err)
}

func TestKindString_RoundTrip(t *testing.T) {
	for _, k := range []Kind{CPUOnly, CPUAndGPU, CPUAndNeuralEngine, All} {
		parsed, err := ParseKind(k.String())
		assert.NoError(t, err)
		assert.Equal(t, k, parsed)
	}
}
