package core

import "math"

// Record is the per-key accumulator.
//
// The four slices keep the lengths of the FieldSet lists they were created for
// for their whole lifetime. Only non-empty field occurrences mutate a slot.
type Record struct {
	Sums          []float64 // one running total per sum field
	Counts        []uint64  // one count of non-empty values per count field
	AverageSums   []float64 // numerator per average field
	AverageCounts []uint64  // denominator per average field
}

// NewRecord creates a zeroed Record sized for fields.
func NewRecord(fields FieldSet) *Record {
	return &Record{
		Sums:          make([]float64, len(fields.Sums)),
		Counts:        make([]uint64, len(fields.Counts)),
		AverageSums:   make([]float64, len(fields.Averages)),
		AverageCounts: make([]uint64, len(fields.Averages)),
	}
}

// Average returns the mean of average slot i. ok is false when no record
// contributed a value for that field.
func (r *Record) Average(i int) (avg float64, ok bool) {
	if r.AverageCounts[i] == 0 {
		return math.NaN(), false
	}
	return r.AverageSums[i] / float64(r.AverageCounts[i]), true
}
