//go:build litert && litert_gpu

package litert

/*
#cgo LDFLAGS: -ltensorflowlite_gpu_delegate
#include "tensorflow/lite/delegates/gpu/delegate.h"
*/
import "C"

import (
	"errors"
	"unsafe"
)

const gpuSupported = true

func newGPUDelegate() (unsafe.Pointer, func(), error) {
	opts := C.TfLiteGpuDelegateOptionsV2Default()
	d := C.TfLiteGpuDelegateV2Create(&opts)
	if d == nil {
		return nil, nil, errors.New("TfLiteGpuDelegateV2Create returned nil")
	}
	return unsafe.Pointer(d), func() { C.TfLiteGpuDelegateV2Delete(d) }, nil
}
