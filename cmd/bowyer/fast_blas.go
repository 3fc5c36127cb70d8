//go:build cgo

package main

// Included only when cgo is enabled. Registers the netlib BLAS
// implementation, which binds to the system BLAS (Accelerate on macOS,
// OpenBLAS on Linux) and speeds up the pure Go runtime's dense layers.

import (
	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/blas/blas64"
	"gonum.org/v1/netlib/blas/netlib"
)

func init() {
	blas64.Use(netlib.Implementation{})
	log.Debug().Msg("CGO/BLAS acceleration enabled (netlib)")
}
