package core

import "strings"

// ExtractField returns the index-th (zero-based) field of record.
// An index beyond the last field, or a negative index, yields "". Callers treat
// an empty field as "no contribution".
func ExtractField(record, delim string, index int) string {
	if index < 0 {
		return ""
	}
	if delim == "" {
		if index == 0 {
			return record
		}
		return ""
	}

	rest := record
	for i := 0; i < index; i++ {
		pos := strings.Index(rest, delim)
		if pos < 0 {
			return ""
		}
		rest = rest[pos+len(delim):]
	}

	if pos := strings.Index(rest, delim); pos >= 0 {
		return rest[:pos]
	}
	return rest
}

// ExtractFields joins the fields at indices with delim, in the order given.
// When suffix is non-empty it is appended to every extracted field, which is
// how auto-labeled headers ("Revenue-Sum") are built.
func ExtractFields(record, delim string, indices []int, suffix string) string {
	if len(indices) == 0 {
		return ""
	}

	// Single-field keys are the common case and need no builder.
	if len(indices) == 1 && suffix == "" {
		return ExtractField(record, delim, indices[0])
	}

	fields := SplitFields(record, delim)

	var b strings.Builder
	b.Grow(len(record) + len(indices)*(len(delim)+len(suffix)))
	for i, idx := range indices {
		if i > 0 {
			b.WriteString(delim)
		}
		if idx >= 0 && idx < len(fields) {
			b.WriteString(fields[idx])
		}
		b.WriteString(suffix)
	}
	return b.String()
}

// SplitFields splits record on delim. An empty delimiter yields the record as
// a single field.
func SplitFields(record, delim string) []string {
	if delim == "" {
		return []string{record}
	}
	return strings.Split(record, delim)
}
