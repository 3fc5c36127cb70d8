package main

import (
	"sort"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/23skdu/longbow-bowyer/internal/infer"
	"github.com/23skdu/longbow-bowyer/internal/stream"
)

// BowyerFlightServer exposes active inference streams over Apache
// Flight. A DoGet ticket is the model id of a stream previously started
// through the HTTP API.
type BowyerFlightServer struct {
	flight.BaseFlightServer
	streams *stream.Coordinator
	alloc   memory.Allocator
}

func NewBowyerFlightServer(streams *stream.Coordinator) *BowyerFlightServer {
	return &BowyerFlightServer{
		streams: streams,
		alloc:   memory.NewGoAllocator(),
	}
}

func (s *BowyerFlightServer) DoGet(ticket *flight.Ticket, srv flight.FlightService_DoGetServer) error {
	modelID := string(ticket.GetTicket())
	ch, ok := s.streams.Subscribe(modelID)
	if !ok {
		return status.Errorf(codes.NotFound, "no active stream for model %s", modelID)
	}

	// The schema depends on whether the stream carries full results or
	// heartbeats, so it is derived from the first tick.
	var writer *flight.Writer
	var schema *arrow.Schema
	var names []string

	for {
		var res *infer.Result
		select {
		case <-srv.Context().Done():
			if writer != nil {
				return writer.Close()
			}
			return nil
		case r, open := <-ch:
			if !open {
				if writer != nil {
					return writer.Close()
				}
				return nil
			}
			res = r
		}

		if writer == nil {
			schema, names = tickSchema(res)
			writer = flight.NewRecordWriter(srv, ipc.WithSchema(schema))
		}

		rec := buildTick(s.alloc, schema, names, res)
		err := writer.Write(rec)
		rec.Release()
		if err != nil {
			_ = writer.Close()
			return err
		}
	}
}

func tickSchema(res *infer.Result) (*arrow.Schema, []string) {
	names := make([]string, 0, len(res.Outputs))
	for name := range res.Outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	fields := make([]arrow.Field, 0, len(names)+2)
	for _, name := range names {
		fields = append(fields, arrow.Field{
			Name: name,
			Type: arrow.FixedSizeListOf(int32(len(res.Outputs[name])), arrow.PrimitiveTypes.Float32),
		})
	}
	fields = append(fields,
		arrow.Field{Name: "latency_us", Type: arrow.PrimitiveTypes.Int64},
		arrow.Field{Name: "accelerator", Type: arrow.BinaryTypes.String},
	)
	return arrow.NewSchema(fields, nil), names
}

// buildTick encodes one result as a single-row record matching schema.
func buildTick(alloc memory.Allocator, schema *arrow.Schema, names []string, res *infer.Result) arrow.RecordBatch {
	cols := make([]arrow.Array, 0, len(names)+2)

	for _, name := range names {
		fslType := schema.Field(len(cols)).Type.(*arrow.FixedSizeListType)
		lb := array.NewFixedSizeListBuilder(alloc, fslType.Len(), arrow.PrimitiveTypes.Float32)
		vb := lb.ValueBuilder().(*array.Float32Builder)
		lb.Append(true)
		for _, v := range res.Outputs[name] {
			vb.Append(float32(v))
		}
		cols = append(cols, lb.NewArray())
		lb.Release()
	}

	latB := array.NewInt64Builder(alloc)
	latB.Append(res.LatencyMicros)
	cols = append(cols, latB.NewArray())
	latB.Release()

	accB := array.NewStringBuilder(alloc)
	accB.Append(res.Units.String())
	cols = append(cols, accB.NewArray())
	accB.Release()

	rec := array.NewRecordBatch(schema, cols, 1)
	for _, col := range cols {
		col.Release()
	}
	return rec
}

func StartFlightServer(addr string, streams *stream.Coordinator) {
	server := flight.NewFlightServer()
	server.RegisterFlightService(NewBowyerFlightServer(streams))

	if err := server.Init(addr); err != nil {
		log.Fatal().Err(err).Msg("Failed to init Flight server")
	}

	log.Info().Str("addr", addr).Msg("Starting Bowyer Flight Server")
	if err := server.Serve(); err != nil {
		log.Fatal().Err(err).Msg("Flight server failed")
	}
}
