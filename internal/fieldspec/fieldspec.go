// Package fieldspec turns user-facing field specifiers into the zero-based
// indices the aggregation core works with.
//
// Fields are selected either by 1-based number lists ("1,3-5") or by labels
// matched against the header line of the input. A Spec implements
// core.Resolver, so label lists are resolved once the header has been read.
package fieldspec

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jeremyhinds/crush-tools/internal/core"
)

// ExpandNumbers expands a 1-based field list such as "1,3-5" into
// []int{1, 3, 4, 5}. Whitespace around items is ignored. Order and repeats are
// kept as written.
func ExpandNumbers(list string) ([]int, error) {
	if strings.TrimSpace(list) == "" {
		return nil, nil
	}

	var out []int
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			return nil, invalidList(list, "empty item")
		}

		lo, hi, isRange := strings.Cut(item, "-")
		start, err := fieldNumber(lo)
		if err != nil {
			return nil, invalidList(list, err.Error())
		}
		if !isRange {
			out = append(out, start)
			continue
		}

		end, err := fieldNumber(hi)
		if err != nil {
			return nil, invalidList(list, err.Error())
		}
		if end < start {
			return nil, invalidList(list, fmt.Sprintf("descending range %q", item))
		}
		for n := start; n <= end; n++ {
			out = append(out, n)
		}
	}
	return out, nil
}

func fieldNumber(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a field number", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("field numbers start at 1, got %d", n)
	}
	return n, nil
}

func invalidList(list, reason string) error {
	return fmt.Errorf("%w: invalid field list %q: %s", core.ErrUsage, list, reason)
}

// SplitLabels splits a comma-separated label list, trimming whitespace.
func SplitLabels(list string) []string {
	if strings.TrimSpace(list) == "" {
		return nil
	}
	parts := strings.Split(list, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}

// HeaderIndex maps header labels to 1-based field numbers.
// Exact matches win; otherwise labels match case-insensitively after trimming
// whitespace and surrounding quotes. The first column with a label wins.
type HeaderIndex struct {
	exact  map[string]int
	folded map[string]int
}

// MakeHeaderIndex indexes the columns of a header line.
func MakeHeaderIndex(header []string) HeaderIndex {
	idx := HeaderIndex{
		exact:  make(map[string]int, len(header)),
		folded: make(map[string]int, len(header)),
	}
	for i, h := range header {
		if _, ok := idx.exact[h]; !ok {
			idx.exact[h] = i + 1
		}
		key := foldLabel(h)
		if _, ok := idx.folded[key]; !ok {
			idx.folded[key] = i + 1
		}
	}
	return idx
}

// Lookup returns the 1-based field number of label.
func (h HeaderIndex) Lookup(label string) (int, bool) {
	if n, ok := h.exact[label]; ok {
		return n, true
	}
	n, ok := h.folded[foldLabel(label)]
	return n, ok
}

func foldLabel(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"'`)
	return strings.ToLower(s)
}

// ExpandLabels resolves a comma-separated label list against header, returning
// 1-based field numbers in list order.
func ExpandLabels(list, header, delim string) ([]int, error) {
	labels := SplitLabels(list)
	if len(labels) == 0 {
		return nil, nil
	}

	idx := MakeHeaderIndex(core.SplitFields(header, delim))
	out := make([]int, 0, len(labels))
	for _, label := range labels {
		n, ok := idx.Lookup(label)
		if !ok {
			return nil, fmt.Errorf("%w: label not found: %q", core.ErrUsage, label)
		}
		out = append(out, n)
	}
	return out, nil
}

// Selector picks fields by number or by label. Numbers take precedence when
// both are set.
type Selector struct {
	Numbers string // 1-based list, e.g. "1,3-5"
	Labels  string // comma-separated header labels
}

// IsZero reports whether no fields are selected.
func (s Selector) IsZero() bool {
	return strings.TrimSpace(s.Numbers) == "" && strings.TrimSpace(s.Labels) == ""
}

// NeedsHeader reports whether resolving s requires the header line.
func (s Selector) NeedsHeader() bool {
	return strings.TrimSpace(s.Numbers) == "" && strings.TrimSpace(s.Labels) != ""
}

// Resolve returns the zero-based indices selected by s.
func (s Selector) Resolve(header, delim string) ([]int, error) {
	var (
		nums []int
		err  error
	)
	if strings.TrimSpace(s.Numbers) != "" {
		nums, err = ExpandNumbers(s.Numbers)
	} else {
		nums, err = ExpandLabels(s.Labels, header, delim)
	}
	if err != nil {
		return nil, err
	}

	for i := range nums {
		nums[i]--
	}
	return nums, nil
}

// Spec holds the four selectors of an aggregation and implements
// core.Resolver.
type Spec struct {
	Keys     Selector
	Sums     Selector
	Counts   Selector
	Averages Selector
}

// Validate implements core.Resolver. Number lists are checked here so that
// malformed lists fail before any input is read.
func (s Spec) Validate() error {
	if s.Keys.IsZero() {
		return core.ErrMissingKeys
	}
	for _, sel := range s.selectors() {
		if _, err := ExpandNumbers(sel.Numbers); err != nil {
			return err
		}
	}
	return nil
}

// NeedsHeader implements core.Resolver.
func (s Spec) NeedsHeader() bool {
	for _, sel := range s.selectors() {
		if sel.NeedsHeader() {
			return true
		}
	}
	return false
}

// Resolve implements core.Resolver.
func (s Spec) Resolve(header, delim string) (core.FieldSet, error) {
	if err := s.Validate(); err != nil {
		return core.FieldSet{}, err
	}

	var (
		fields core.FieldSet
		err    error
	)
	if fields.Keys, err = s.Keys.Resolve(header, delim); err != nil {
		return core.FieldSet{}, fmt.Errorf("key fields: %w", err)
	}
	if fields.Sums, err = s.Sums.Resolve(header, delim); err != nil {
		return core.FieldSet{}, fmt.Errorf("sum fields: %w", err)
	}
	if fields.Counts, err = s.Counts.Resolve(header, delim); err != nil {
		return core.FieldSet{}, fmt.Errorf("count fields: %w", err)
	}
	if fields.Averages, err = s.Averages.Resolve(header, delim); err != nil {
		return core.FieldSet{}, fmt.Errorf("average fields: %w", err)
	}
	return fields, nil
}

func (s Spec) selectors() []Selector {
	return []Selector{s.Keys, s.Sums, s.Counts, s.Averages}
}
