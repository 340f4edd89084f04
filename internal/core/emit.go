package core

import (
	"bufio"
	"io"
	"math"
	"strconv"
	"strings"
)

// Row is one emitted group.
type Row struct {
	Key    string // composite key, key fields joined by the delimiter
	Record *Record
}

// Result is a completed aggregation, ready to be emitted.
//
// SumPrecision and AveragePrecision hold the widest fractional part observed
// per field over the whole input. Averages are printed with two more digits.
type Result struct {
	Header    string
	HasHeader bool
	Rows      []Row

	Fields           FieldSet
	Delimiter        string
	SumPrecision     []int
	AveragePrecision []int
	EmptyAverage     string

	Stats Stats
}

// HeaderFields splits the header line into columns. It returns nil when the
// aggregation had no header.
func (r *Result) HeaderFields() []string {
	if !r.HasHeader {
		return nil
	}
	return SplitFields(r.Header, r.Delimiter)
}

// KeyFields splits a row's composite key into its key fields.
func (r *Result) KeyFields(row Row) []string {
	if len(r.Fields.Keys) == 1 {
		return []string{row.Key}
	}
	return SplitFields(row.Key, r.Delimiter)
}

// SumText formats sum i of row with the tracked precision.
func (r *Result) SumText(row Row, i int) string {
	return formatNumber(row.Record.Sums[i], r.SumPrecision[i])
}

// CountText formats count i of row.
func (r *Result) CountText(row Row, i int) string {
	return strconv.FormatUint(row.Record.Counts[i], 10)
}

// AverageText formats average i of row with the tracked precision plus two
// digits, or EmptyAverage when no value contributed.
func (r *Result) AverageText(row Row, i int) string {
	avg, ok := row.Record.Average(i)
	if !ok {
		if r.EmptyAverage == "" {
			return DefaultEmptyAverage
		}
		return r.EmptyAverage
	}
	return formatNumber(avg, r.AveragePrecision[i]+2)
}

// formatNumber prints v with digits fractional digits, spelling non-finite
// values inf, -inf and nan.
func formatNumber(v float64, digits int) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	return strconv.FormatFloat(v, 'f', digits, 64)
}

// Values returns the formatted sums, counts and averages of row, in that
// order.
func (r *Result) Values(row Row) []string {
	rec := row.Record
	values := make([]string, 0, len(rec.Sums)+len(rec.Counts)+len(rec.AverageSums))
	for i := range rec.Sums {
		values = append(values, r.SumText(row, i))
	}
	for i := range rec.Counts {
		values = append(values, r.CountText(row, i))
	}
	for i := range rec.AverageSums {
		values = append(values, r.AverageText(row, i))
	}
	return values
}

// Line renders row as an output line without its terminator.
func (r *Result) Line(row Row) string {
	var b strings.Builder
	b.WriteString(row.Key)
	for _, v := range r.Values(row) {
		b.WriteString(r.Delimiter)
		b.WriteString(v)
	}
	return b.String()
}

// WriteTo writes the header, if any, and one line per row to w.
func (r *Result) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	var total int64

	write := func(s string) error {
		n, err := bw.WriteString(s)
		total += int64(n)
		if err != nil {
			return err
		}
		n, err = bw.WriteString("\n")
		total += int64(n)
		return err
	}

	if r.HasHeader {
		if err := write(r.Header); err != nil {
			return total, err
		}
	}
	for _, row := range r.Rows {
		if err := write(r.Line(row)); err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}
