// Package templates renders the HTML views of the aggregation service.
//
// The components live in .templ files; run `templ generate` after editing
// them.
package templates

import "strconv"

// ReportView is the data behind an HTML aggregation report.
type ReportView struct {
	Title   string
	RunID   string
	Columns []string   // header cells; empty renders no <thead>
	Rows    [][]string // key fields followed by formatted values
	Lines   int64
	Groups  int
	Skipped int // malformed numbers plus dropped keys
}

// Summary is the one-line run summary shown above the table.
func (v ReportView) Summary() string {
	s := strconv.FormatInt(v.Lines, 10) + " lines, " + strconv.Itoa(v.Groups) + " groups"
	if v.Skipped > 0 {
		s += ", " + strconv.Itoa(v.Skipped) + " skipped values"
	}
	return s
}
