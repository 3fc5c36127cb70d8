//go:build litert && !litert_gpu

package litert

import (
	"errors"
	"unsafe"
)

const gpuSupported = false

func newGPUDelegate() (unsafe.Pointer, func(), error) {
	return nil, nil, errors.New("built without the GPU delegate (build with -tags litert,litert_gpu)")
}
