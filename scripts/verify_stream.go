//go:build ignore

// Connects to a running bowyer Flight server and prints a few ticks
// from an active stream:
//
//	go run scripts/verify_stream.go <modelId> [addr]
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/23skdu/longbow-bowyer/internal/client"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		log.Fatal().Msg("Usage: verify_stream.go <modelId> [addr]")
	}
	modelID := os.Args[1]
	addr := "localhost:9090"
	if len(os.Args) > 2 {
		addr = os.Args[2]
	}

	log.Info().Str("addr", addr).Str("model_id", modelID).Msg("Connecting to Bowyer Flight Server")

	var c *client.StreamClient
	var err error
	for i := 0; i < 10; i++ {
		c, err = client.NewStreamClient(addr)
		if err == nil {
			break
		}
		log.Warn().Err(err).Msg("Connection failed, retrying...")
		time.Sleep(1 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect after retries")
	}
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := 0
	err = c.Subscribe(ctx, modelID, func(tk client.Tick) {
		log.Info().
			Int64("latency_us", tk.LatencyMicros).
			Str("accelerator", tk.Accelerator).
			Int("outputs", len(tk.Outputs)).
			Msg("Tick")
		for name, vals := range tk.Outputs {
			log.Info().Str("output", name).Int("dim", len(vals)).Floats64("head", head(vals, 4)).Msg("Output")
		}
		ticks++
		if ticks >= 5 {
			cancel()
		}
	})
	if err != nil && ctx.Err() == nil {
		log.Fatal().Err(err).Msg("Subscription failed")
	}
	if ticks == 0 {
		log.Fatal().Msg("No ticks received; is the stream started?")
	}

	fmt.Println("VERIFICATION PASSED")
}

func head(vals []float64, n int) []float64 {
	if len(vals) < n {
		return vals
	}
	return vals[:n]
}
