// Package device models the compute units a runtime may dispatch
// inference to, and the policy for picking one from a caller preference
// plus a capability probe. Acceleration is a performance hint: an
// unsupported or broken accelerated path falls back to CPU and never
// fails a load.
package device

import (
	"fmt"
)

// Kind identifies the accelerator path actually in effect for a loaded
// model. It is reported back verbatim on every inference result.
type Kind int

const (
	CPUOnly Kind = iota
	CPUAndGPU
	CPUAndNeuralEngine
	All
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case CPUOnly:
		return "cpu"
	case CPUAndGPU:
		return "cpu_gpu"
	case CPUAndNeuralEngine:
		return "cpu_ane"
	case All:
		return "all"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a wire compute-units name. The long-form aliases match
// the caller-facing enum of the bridge API.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "cpu", "cpuOnly", "":
		return CPUOnly, nil
	case "cpu_gpu", "cpuAndGpu":
		return CPUAndGPU, nil
	case "cpu_ane", "cpuAndDedicatedAccelerator", "cpuAndNeuralEngine":
		return CPUAndNeuralEngine, nil
	case "all", "allAvailable":
		return All, nil
	default:
		return CPUOnly, fmt.Errorf("unknown compute units %q", s)
	}
}

// Capability reports which accelerated paths a runtime can construct on
// this device. Probed per engine, not per model.
type Capability struct {
	GPU          bool
	NeuralEngine bool
}

// Select chooses the accelerator kind to construct given the caller's
// request and the probed capability. A CPU-only request is honored
// unconditionally. Requests for unavailable accelerators degrade to the
// best supported path, bottoming out at CPU; the degraded choice is
// recorded in the fallback counter but is never an error.
func Select(requested Kind, cap Capability) Kind {
	switch requested {
	case CPUOnly:
		return CPUOnly
	case CPUAndGPU:
		if cap.GPU {
			return CPUAndGPU
		}
	case CPUAndNeuralEngine:
		if cap.NeuralEngine {
			return CPUAndNeuralEngine
		}
	case All:
		if cap.GPU && cap.NeuralEngine {
			return All
		}
		if cap.NeuralEngine {
			return CPUAndNeuralEngine
		}
		if cap.GPU {
			return CPUAndGPU
		}
	}
	fallbacks.WithLabelValues(requested.String()).Inc()
	return CPUOnly
}
