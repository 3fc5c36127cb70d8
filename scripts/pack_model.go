//go:build ignore

// Writes a small demo model for local testing:
//
//	go run scripts/pack_model.go -o models/demo.lbow
//
// The model is a 4-in 2-out dense network with one hidden layer and
// fixed weights, so its outputs are reproducible across runs.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/23skdu/longbow-bowyer/internal/engine/simplego"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

func main() {
	out := flag.String("o", "demo.lbow", "Output path")
	flag.Parse()

	def := simplego.ModelDef{
		Inputs: []tensor.Descriptor{
			{Name: "features", Shape: []int{4}, Type: tensor.Float32},
		},
		Outputs: []tensor.Descriptor{
			{Name: "scores", Shape: []int{2}, Type: tensor.Float32},
		},
		Layers: []simplego.Layer{
			{
				In: 4, Out: 3, Activation: simplego.ActReLU,
				W: []float32{
					0.5, -0.25, 0.1,
					0.3, 0.8, -0.5,
					-0.2, 0.4, 0.6,
					0.9, -0.1, 0.2,
				},
				B: []float32{0.1, -0.1, 0.05},
			},
			{
				In: 3, Out: 2, Activation: simplego.ActIdentity,
				W: []float32{
					1.0, -1.0,
					0.5, 0.5,
					-0.3, 0.7,
				},
				B: []float32{0, 0.25},
			},
		},
	}

	if err := simplego.WriteModelFile(*out, def); err != nil {
		fmt.Fprintln(os.Stderr, "pack failed:", err)
		os.Exit(1)
	}
	fmt.Println("wrote", *out)
}
