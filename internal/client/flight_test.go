package client

import (
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildTestRecord(t *testing.T, scores []float64, latency int64, accel string) arrow.RecordBatch {
	t.Helper()
	pool := memory.NewGoAllocator()

	fields := []arrow.Field{
		{Name: "scores", Type: arrow.FixedSizeListOf(int32(len(scores)), arrow.PrimitiveTypes.Float32)},
		{Name: "latency_us", Type: arrow.PrimitiveTypes.Int64},
		{Name: "accelerator", Type: arrow.BinaryTypes.String},
	}
	schema := arrow.NewSchema(fields, nil)

	lb := array.NewFixedSizeListBuilder(pool, int32(len(scores)), arrow.PrimitiveTypes.Float32)
	defer lb.Release()
	vb := lb.ValueBuilder().(*array.Float32Builder)
	lb.Append(true)
	for _, v := range scores {
		vb.Append(float32(v))
	}

	latB := array.NewInt64Builder(pool)
	defer latB.Release()
	latB.Append(latency)

	accB := array.NewStringBuilder(pool)
	defer accB.Release()
	accB.Append(accel)

	cols := []arrow.Array{lb.NewArray(), latB.NewArray(), accB.NewArray()}
	for _, c := range cols {
		defer c.Release()
	}
	return array.NewRecordBatch(schema, cols, 1)
}

func TestDecodeTick(t *testing.T) {
	rec := buildTestRecord(t, []float64{1.5, -2.5, 0}, 740, "cpu_gpu")
	defer rec.Release()

	tick := decodeTick(rec)
	assert.Equal(t, int64(740), tick.LatencyMicros)
	assert.Equal(t, "cpu_gpu", tick.Accelerator)
	require.Contains(t, tick.Outputs, "scores")
	assert.InDeltaSlice(t, []float64{1.5, -2.5, 0}, tick.Outputs["scores"], 1e-6)
}

func TestDecodeTickHeartbeat(t *testing.T) {
	pool := memory.NewGoAllocator()
	schema := arrow.NewSchema([]arrow.Field{
		{Name: "latency_us", Type: arrow.PrimitiveTypes.Int64},
		{Name: "accelerator", Type: arrow.BinaryTypes.String},
	}, nil)

	latB := array.NewInt64Builder(pool)
	defer latB.Release()
	latB.Append(0)
	accB := array.NewStringBuilder(pool)
	defer accB.Release()
	accB.Append("cpu")

	cols := []arrow.Array{latB.NewArray(), accB.NewArray()}
	for _, c := range cols {
		defer c.Release()
	}
	rec := array.NewRecordBatch(schema, cols, 1)
	defer rec.Release()

	tick := decodeTick(rec)
	assert.Empty(t, tick.Outputs)
	assert.Equal(t, "cpu", tick.Accelerator)
}
