package core

import (
	"regexp"
	"strconv"
	"strings"
)

// numericPrefix matches the leading numeric portion of a field: integers,
// decimals and scientific notation.
var numericPrefix = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// FractionalDigits returns the number of characters after the first decimal
// point in text, or 0 when there is none.
//
// The count is purely textual: "1.50" has 2, "2e-3" has 0.
func FractionalDigits(text string) int {
	dot := strings.IndexByte(text, '.')
	if dot < 0 {
		return 0
	}
	return len(text) - dot - 1
}

// ParseNumber converts a field to a float64.
//
// Surrounding whitespace is ignored. If the whole field parses, ok is true.
// Otherwise the longest numeric prefix is used ("12abc" is 12) and ok is false;
// text with no numeric prefix is 0. Malformed text is never an error here.
func ParseNumber(text string) (value float64, ok bool) {
	s := strings.TrimSpace(text)
	if s == "" {
		return 0, false
	}

	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, true
	}

	prefix := numericPrefix.FindString(s)
	if prefix == "" {
		return 0, false
	}
	// Out-of-range exponents still yield ±Inf alongside the error.
	v, _ := strconv.ParseFloat(prefix, 64)
	return v, false
}

// precisionTracker records the widest fractional part seen per field slot.
type precisionTracker []int

func newPrecisionTracker(n int) precisionTracker {
	return make(precisionTracker, n)
}

// observe widens slot i to text's fractional digits if larger.
func (p precisionTracker) observe(i int, text string) {
	if n := FractionalDigits(text); n > p[i] {
		p[i] = n
	}
}
