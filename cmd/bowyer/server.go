package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/semaphore"

	"github.com/23skdu/longbow-bowyer/internal/assets"
	"github.com/23skdu/longbow-bowyer/internal/device"
	"github.com/23skdu/longbow-bowyer/internal/engine"
	"github.com/23skdu/longbow-bowyer/internal/infer"
	"github.com/23skdu/longbow-bowyer/internal/registry"
	"github.com/23skdu/longbow-bowyer/internal/stream"
	"github.com/23skdu/longbow-bowyer/internal/tensor"
)

var (
	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bowyer_request_duration_seconds",
		Help:    "Time spent handling API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	requestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bowyer_request_errors_total",
		Help: "API requests that returned an error, by error code",
	}, []string{"code"})
)

var tracer = otel.Tracer("bowyer-server")

type Server struct {
	reg     *registry.Registry
	exec    *infer.Executor
	streams *stream.Coordinator
	sem     *semaphore.Weighted
}

func NewServer(reg *registry.Registry, exec *infer.Executor, streams *stream.Coordinator, maxConcurrent int) *Server {
	return &Server{
		reg:     reg,
		exec:    exec,
		streams: streams,
		sem:     semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

// Wire types. Field names follow the camelCase the mobile callers use.

type descriptorWire struct {
	Name  string `cbor:"name"`
	Shape []int  `cbor:"shape"`
	Type  string `cbor:"type"`
}

type signatureWire struct {
	Inputs  []descriptorWire `cbor:"inputs"`
	Outputs []descriptorWire `cbor:"outputs"`
}

type loadRequest struct {
	Path  string `cbor:"path"`
	Units string `cbor:"units"`
}

type loadResponse struct {
	ModelID     string        `cbor:"modelId"`
	Accelerator string        `cbor:"accelerator"`
	Signature   signatureWire `cbor:"signature"`
}

type modelRequest struct {
	ModelID string `cbor:"modelId"`
}

type runRequest struct {
	ModelID string               `cbor:"modelId"`
	Inputs  map[string][]float64 `cbor:"inputs"`
}

type runResponse struct {
	Outputs     map[string][]float64 `cbor:"outputs"`
	LatencyUs   int64                `cbor:"latencyUs"`
	Accelerator string               `cbor:"accelerator"`
}

type streamStartRequest struct {
	ModelID string               `cbor:"modelId"`
	Inputs  map[string][]float64 `cbor:"inputs,omitempty"`
}

type errorResponse struct {
	Code    string `cbor:"code"`
	Message string `cbor:"message"`
}

func toWire(sig tensor.Signature) signatureWire {
	conv := func(ds []tensor.Descriptor) []descriptorWire {
		out := make([]descriptorWire, len(ds))
		for i, d := range ds {
			out[i] = descriptorWire{Name: d.Name, Shape: d.Shape, Type: d.Type.String()}
		}
		return out
	}
	return signatureWire{Inputs: conv(sig.Inputs), Outputs: conv(sig.Outputs)}
}

// errBadArguments marks malformed requests that never reached a model.
var errBadArguments = errors.New("bad arguments")

// errorCode maps an error chain to its wire code and HTTP status.
func errorCode(err error) (string, int) {
	switch {
	case errors.Is(err, errBadArguments):
		return "BadArguments", http.StatusBadRequest
	case errors.Is(err, assets.ErrNotFound):
		return "AssetNotFound", http.StatusNotFound
	case errors.Is(err, registry.ErrModelNotFound):
		return "ModelNotFound", http.StatusNotFound
	case errors.Is(err, tensor.ErrInputMissing):
		return "InputMissing", http.StatusBadRequest
	case errors.Is(err, tensor.ErrShapeMismatch):
		return "ShapeMismatch", http.StatusBadRequest
	case errors.Is(err, tensor.ErrUnsupportedType):
		return "UnsupportedType", http.StatusBadRequest
	case errors.Is(err, engine.ErrLoadFailed):
		return "LoadFailed", http.StatusInternalServerError
	case errors.Is(err, engine.ErrInferenceFailed):
		return "InferenceFailed", http.StatusInternalServerError
	default:
		return "Internal", http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, err error) {
	code, status := errorCode(err)
	requestErrors.WithLabelValues(code).Inc()
	w.Header().Set("Content-Type", "application/cbor")
	w.WriteHeader(status)
	_ = cbor.NewEncoder(w).Encode(errorResponse{Code: code, Message: err.Error()})
}

func writeCBOR(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/cbor")
	if err := cbor.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to encode response")
	}
}

func decodeRequest(r *http.Request, v any) error {
	if r.Method != http.MethodPost {
		return fmt.Errorf("%w: method %s not allowed", errBadArguments, r.Method)
	}
	if err := cbor.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadArguments, err)
	}
	return nil
}

func startServer(addr string, srv *Server) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", srv.handleHealth)
	mux.HandleFunc("/v1/load", srv.handleLoad)
	mux.HandleFunc("/v1/signature", srv.handleSignature)
	mux.HandleFunc("/v1/run", srv.handleRun)
	mux.HandleFunc("/v1/dispose", srv.handleDispose)
	mux.HandleFunc("/v1/stream/start", srv.handleStreamStart)
	mux.HandleFunc("/v1/stream/stop", srv.handleStreamStop)
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)

	log.Info().Str("addr", addr).Strs("extensions", engine.Extensions()).Msg("Starting Bowyer Server")
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatal().Err(err).Msg("Server failed")
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleLoad(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleLoad")
	defer span.End()

	start := time.Now()
	defer func() { requestDuration.WithLabelValues("load").Observe(time.Since(start).Seconds()) }()

	var req loadRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Path == "" {
		writeError(w, fmt.Errorf("%w: path is required", errBadArguments))
		return
	}

	units, err := device.ParseKind(req.Units)
	if err != nil {
		writeError(w, fmt.Errorf("%w: %v", errBadArguments, err))
		return
	}
	span.SetAttributes(attribute.String("asset", req.Path))

	// Native model construction blocks; it counts against the same
	// admission budget as inference.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	id, err := s.reg.Load(ctx, req.Path, units)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}

	h, err := s.reg.Handle(id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCBOR(w, loadResponse{
		ModelID:     id,
		Accelerator: h.Units().String(),
		Signature:   toWire(h.Signature()),
	})
}

func (s *Server) handleSignature(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	sig, err := s.reg.Signature(req.ModelID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeCBOR(w, toWire(sig))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.Start(r.Context(), "handleRun")
	defer span.End()

	start := time.Now()
	defer func() { requestDuration.WithLabelValues("run").Observe(time.Since(start).Seconds()) }()

	var req runRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	span.SetAttributes(attribute.String("model_id", req.ModelID))

	// Admission control: one unit per in-flight inference.
	if err := s.sem.Acquire(ctx, 1); err != nil {
		log.Error().Err(err).Msg("Failed to acquire semaphore")
		http.Error(w, "Server busy", http.StatusServiceUnavailable)
		return
	}
	defer s.sem.Release(1)

	res, err := s.exec.Run(ctx, req.ModelID, req.Inputs)
	if err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeCBOR(w, runResponse{
		Outputs:     res.Outputs,
		LatencyUs:   res.LatencyMicros,
		Accelerator: res.Units.String(),
	})
}

func (s *Server) handleDispose(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	// Idempotent regardless of whether the id is live.
	s.reg.Dispose(req.ModelID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStreamStart(w http.ResponseWriter, r *http.Request) {
	var req streamStartRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if _, err := s.streams.Start(req.ModelID, req.Inputs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handleStreamStop(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if err := decodeRequest(r, &req); err != nil {
		writeError(w, err)
		return
	}
	s.streams.Stop(req.ModelID)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
