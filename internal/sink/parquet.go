package sink

import (
	"context"
	"fmt"
	"io"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/pqarrow"

	"github.com/jeremyhinds/crush-tools/internal/core"
)

// Parquet writes the result as a Parquet file with one row per group. Key
// columns are strings, sums and averages float64 and counts int64. Averages
// with no contributing values are null.
type Parquet struct {
	W io.Writer

	// Allocator defaults to memory.DefaultAllocator.
	Allocator memory.Allocator
}

// Schema returns the Arrow schema for res.
func Schema(res *core.Result) *arrow.Schema {
	cols := Columns(res)
	fields := make([]arrow.Field, len(cols))
	for i, c := range cols {
		switch c.Kind {
		case KeyColumn:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.BinaryTypes.String}
		case SumColumn:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64}
		case CountColumn:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Int64}
		case AverageColumn:
			fields[i] = arrow.Field{Name: c.Name, Type: arrow.PrimitiveTypes.Float64, Nullable: true}
		}
	}
	return arrow.NewSchema(fields, nil)
}

// Record builds an Arrow record holding every row of res. The caller must
// release it.
func Record(res *core.Result, mem memory.Allocator) arrow.Record {
	if mem == nil {
		mem = memory.DefaultAllocator
	}
	rb := array.NewRecordBuilder(mem, Schema(res))
	defer rb.Release()

	f := res.Fields
	sumAt := len(f.Keys)
	countAt := sumAt + len(f.Sums)
	avgAt := countAt + len(f.Counts)

	for _, row := range res.Rows {
		keys := res.KeyFields(row)
		for i := range f.Keys {
			rb.Field(i).(*array.StringBuilder).Append(keyValue(keys, i))
		}
		rec := row.Record
		for i, sum := range rec.Sums {
			rb.Field(sumAt + i).(*array.Float64Builder).Append(sum)
		}
		for i, count := range rec.Counts {
			rb.Field(countAt + i).(*array.Int64Builder).Append(int64(count))
		}
		for i := range rec.AverageSums {
			b := rb.Field(avgAt + i).(*array.Float64Builder)
			if avg, ok := rec.Average(i); ok {
				b.Append(avg)
			} else {
				b.AppendNull()
			}
		}
	}
	return rb.NewRecord()
}

func (s Parquet) Write(ctx context.Context, res *core.Result) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	record := Record(res, s.Allocator)
	defer record.Release()

	writer, err := pqarrow.NewFileWriter(record.Schema(), s.W, nil, pqarrow.DefaultWriterProps())
	if err != nil {
		return fmt.Errorf("failed to create parquet writer: %w", err)
	}

	if err := writer.WriteBuffered(record); err != nil {
		writer.Close()
		return fmt.Errorf("failed to write record to parquet: %w", err)
	}

	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close parquet writer: %w", err)
	}
	return nil
}
