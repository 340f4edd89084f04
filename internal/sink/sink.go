// Package sink writes completed aggregations to their destinations: the
// delimited text stream, JSON documents, Parquet files and PostgreSQL tables.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/jeremyhinds/crush-tools/internal/core"
)

// Sink consumes one aggregation result.
type Sink interface {
	Write(ctx context.Context, res *core.Result) error
}

// Text writes the delimited emitter output.
type Text struct {
	W io.Writer
}

func (s Text) Write(_ context.Context, res *core.Result) error {
	if _, err := res.WriteTo(s.W); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

// JSON writes the result as a single JSON document.
type JSON struct {
	W      io.Writer
	Indent bool
}

// Document is the JSON rendering of a result.
type Document struct {
	Header []string      `json:"header,omitempty"`
	Rows   []DocumentRow `json:"rows"`
}

// DocumentRow is one group. Averages with no contributing values are null, as
// are sums and averages that are NaN or infinite.
type DocumentRow struct {
	Key      []string   `json:"key"`
	Sums     []*float64 `json:"sums"`
	Counts   []uint64   `json:"counts"`
	Averages []*float64 `json:"averages"`
}

// NewDocument converts res into its JSON shape. Sums and averages are rounded
// to the precision the text output would print.
func NewDocument(res *core.Result) Document {
	doc := Document{
		Header: res.HeaderFields(),
		Rows:   make([]DocumentRow, 0, len(res.Rows)),
	}
	for _, row := range res.Rows {
		rec := row.Record
		out := DocumentRow{
			Key:      res.KeyFields(row),
			Sums:     make([]*float64, len(rec.Sums)),
			Counts:   append([]uint64{}, rec.Counts...),
			Averages: make([]*float64, len(rec.AverageSums)),
		}
		for i, sum := range rec.Sums {
			out.Sums[i] = finite(round(sum, res.SumPrecision[i]))
		}
		for i := range rec.AverageSums {
			if avg, ok := rec.Average(i); ok {
				out.Averages[i] = finite(round(avg, res.AveragePrecision[i]+2))
			}
		}
		doc.Rows = append(doc.Rows, out)
	}
	return doc
}

func (s JSON) Write(_ context.Context, res *core.Result) error {
	enc := json.NewEncoder(s.W)
	if s.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(NewDocument(res)); err != nil {
		return fmt.Errorf("json sink: %w", err)
	}
	return nil
}

// finite returns a pointer to v, or nil when JSON cannot represent it.
func finite(v float64) *float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return nil
	}
	return &v
}

// round rounds v to digits fractional digits the same way the text output
// formats it.
func round(v float64, digits int) float64 {
	if math.IsInf(v, 0) || math.IsNaN(v) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', digits, 64), 64)
	if err != nil {
		return v
	}
	return r
}

// ColumnKind tells sinks how to store a column.
type ColumnKind int

const (
	KeyColumn ColumnKind = iota
	SumColumn
	CountColumn
	AverageColumn
)

// Column names one output column.
type Column struct {
	Name string
	Kind ColumnKind
}

// Columns returns the output columns of res in emission order: keys, sums,
// counts, averages. Header labels are used as names when the header has
// exactly one non-empty, distinct label per column; otherwise names are
// generated as key_N, sum_N, count_N and average_N.
func Columns(res *core.Result) []Column {
	f := res.Fields
	cols := make([]Column, 0, len(f.Keys)+len(f.Sums)+len(f.Counts)+len(f.Averages))
	add := func(n int, prefix string, kind ColumnKind) {
		for i := range n {
			cols = append(cols, Column{Name: prefix + "_" + strconv.Itoa(i+1), Kind: kind})
		}
	}
	add(len(f.Keys), "key", KeyColumn)
	add(len(f.Sums), "sum", SumColumn)
	add(len(f.Counts), "count", CountColumn)
	add(len(f.Averages), "average", AverageColumn)

	labels := res.HeaderFields()
	if len(labels) != len(cols) {
		return cols
	}
	seen := make(map[string]bool, len(labels))
	for _, l := range labels {
		if l == "" || seen[l] {
			return cols
		}
		seen[l] = true
	}
	for i := range cols {
		cols[i].Name = labels[i]
	}
	return cols
}

// keyValue returns key field i of row, or "" when the key has fewer fields.
func keyValue(keys []string, i int) string {
	if i < len(keys) {
		return keys[i]
	}
	return ""
}
