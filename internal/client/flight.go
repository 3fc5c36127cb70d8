// Package client subscribes to bowyer inference streams over Apache
// Flight. It is used by downstream consumers and by the server's own
// integration tests.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/flight"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Tick is one decoded stream result. Heartbeat ticks carry an empty
// Outputs map.
type Tick struct {
	Outputs       map[string][]float64
	LatencyMicros int64
	Accelerator   string
}

// StreamClient consumes per-model result streams from a bowyer server.
type StreamClient struct {
	client  flight.Client
	conn    *grpc.ClientConn
	breaker *CircuitBreaker
}

// NewStreamClient connects to the given Flight address.
func NewStreamClient(addr string) (*StreamClient, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &StreamClient{
		client:  flight.NewClientFromConn(conn, nil),
		conn:    conn,
		breaker: NewCircuitBreaker(5, 10*time.Second),
	}, nil
}

// Subscribe opens one DoGet stream for modelID and invokes fn for each
// tick. It returns when the server ends the stream or ctx is done.
func (c *StreamClient) Subscribe(ctx context.Context, modelID string, fn func(Tick)) error {
	stream, err := c.client.DoGet(ctx, &flight.Ticket{Ticket: []byte(modelID)})
	if err != nil {
		return fmt.Errorf("stream open: %w", err)
	}

	rdr, err := flight.NewRecordReader(stream)
	if err != nil {
		return fmt.Errorf("stream reader: %w", err)
	}
	defer rdr.Release()

	for rdr.Next() {
		fn(decodeTick(rdr.Record()))
	}
	return rdr.Err()
}

// Run retries a failing subscription, gated by the circuit breaker so a
// refusing server is not hammered. It returns when the server ends the
// stream cleanly or ctx is cancelled.
func (c *StreamClient) Run(ctx context.Context, modelID string, fn func(Tick)) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.breaker.Allow() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}

		err := c.Subscribe(ctx, modelID, fn)
		if err == nil || ctx.Err() != nil {
			// Clean server-side end of stream, or our own cancellation.
			c.breaker.Success()
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}

		c.breaker.Failure()
		log.Warn().Err(err).Str("model_id", modelID).Msg("stream subscription failed")
	}
}

// Close closes the underlying connection.
func (c *StreamClient) Close() error {
	return c.conn.Close()
}

// decodeTick reads the first row of a stream record. Output columns are
// fixed-size float32 lists named after the model's output tensors;
// latency_us and accelerator ride alongside them.
func decodeTick(rec arrow.RecordBatch) Tick {
	t := Tick{Outputs: make(map[string][]float64)}
	for i, f := range rec.Schema().Fields() {
		col := rec.Column(i)
		if col.Len() == 0 {
			continue
		}
		switch f.Name {
		case "latency_us":
			if a, ok := col.(*array.Int64); ok {
				t.LatencyMicros = a.Value(0)
			}
		case "accelerator":
			if a, ok := col.(*array.String); ok {
				t.Accelerator = a.Value(0)
			}
		default:
			a, ok := col.(*array.FixedSizeList)
			if !ok {
				continue
			}
			vals, ok := a.ListValues().(*array.Float32)
			if !ok {
				continue
			}
			n := int(a.DataType().(*arrow.FixedSizeListType).Len())
			off := a.Offset() * n
			out := make([]float64, n)
			for j := 0; j < n; j++ {
				out[j] = float64(vals.Value(off + j))
			}
			t.Outputs[f.Name] = out
		}
	}
	return t
}
