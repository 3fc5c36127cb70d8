package main

import (
	"context"
	"flag"
	"os"
	"runtime/pprof"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	"github.com/23skdu/longbow-bowyer/internal/assets"
	"github.com/23skdu/longbow-bowyer/internal/cache"
	"github.com/23skdu/longbow-bowyer/internal/infer"
	"github.com/23skdu/longbow-bowyer/internal/registry"
	"github.com/23skdu/longbow-bowyer/internal/stream"

	// Native runtimes self-register by model file extension.
	_ "github.com/23skdu/longbow-bowyer/internal/engine/coreml"
	_ "github.com/23skdu/longbow-bowyer/internal/engine/litert"
	_ "github.com/23skdu/longbow-bowyer/internal/engine/simplego"
)

var (
	listenAddr     = flag.String("listen", ":8080", "Address to listen on for HTTP API")
	flightAddr     = flag.String("flight", "", "Address to listen on for Flight stream server (e.g. :9090)")
	modelsDir      = flag.String("models", "models", "Root directory for model assets")
	streamInterval = flag.Duration("interval", time.Second, "Tick interval for inference streams")
	maxConcurrent  = flag.Int("max-concurrent", 64, "Maximum number of concurrent inference requests")
	threads        = flag.Int("threads", 0, "CPU threads per native interpreter (0 = runtime default)")
	enableCache    = flag.Bool("cache", false, "Memoize inference results per model and input set")
	enableOTel     = flag.Bool("otel", false, "Enable OpenTelemetry tracing (stdout)")
	cpuProfile     = flag.String("cpuprofile", "", "Write cpu profile to file")
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Caller().Logger()

	flag.Parse()

	if *enableOTel {
		shutdown, err := initTracer()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize tracer")
		}
		defer shutdown(context.Background())
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create CPU profile file")
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal().Err(err).Msg("Could not start CPU profile")
		}
		defer pprof.StopCPUProfile()
	}

	reg := registry.New(assets.NewDirResolver(*modelsDir), *threads)

	var resultCache cache.ResultCache
	if *enableCache {
		resultCache = cache.NewMapCache()
	}

	exec := infer.New(reg, resultCache)
	streams := stream.New(exec, *streamInterval)

	// Disposal tears down everything attached to the id before the
	// native handle is released.
	reg.SetDisposeHook(func(modelID string) {
		streams.Stop(modelID)
		if resultCache != nil {
			resultCache.Invalidate(modelID)
		}
	})

	if *flightAddr != "" {
		go StartFlightServer(*flightAddr, streams)
	}

	startServer(*listenAddr, NewServer(reg, exec, streams, *maxConcurrent))
}

func initTracer() (func(context.Context) error, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("bowyer"),
		)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp.Shutdown, nil
}
