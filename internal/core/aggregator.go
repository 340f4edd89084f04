package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// DefaultDelimiter separates fields when none is configured. The byte 0xFE
// never appears in UTF-8 text.
const DefaultDelimiter = "\xfe"

// DefaultEmptyAverage is printed for an average with no contributing values.
const DefaultEmptyAverage = "nan"

// ContextCheckInterval is how many lines are accumulated between checks for
// context cancellation.
const ContextCheckInterval = 100

// Header suffixes used when auto-labeling.
const (
	SumSuffix     = "-Sum"
	CountSuffix   = "-Count"
	AverageSuffix = "-Average"
)

// FieldSet holds the resolved, zero-based field indices of one aggregation.
// Keys must be non-empty. The lists may overlap each other.
type FieldSet struct {
	Keys     []int
	Sums     []int
	Counts   []int
	Averages []int
}

// Validate implements Resolver.
func (f FieldSet) Validate() error {
	if len(f.Keys) == 0 {
		return ErrMissingKeys
	}
	return nil
}

// NeedsHeader implements Resolver. A FieldSet is already resolved.
func (f FieldSet) NeedsHeader() bool { return false }

// Resolve implements Resolver by returning f after checking its indices.
func (f FieldSet) Resolve(string, string) (FieldSet, error) {
	if err := f.Validate(); err != nil {
		return FieldSet{}, err
	}
	for _, list := range [][]int{f.Keys, f.Sums, f.Counts, f.Averages} {
		for _, idx := range list {
			if idx < 0 {
				return FieldSet{}, fmt.Errorf("%w: invalid field index %d", ErrUsage, idx)
			}
		}
	}
	return f, nil
}

// Resolver turns user-facing field specifiers into a FieldSet.
type Resolver interface {
	// Validate reports missing key specifiers before any input is read.
	Validate() error

	// NeedsHeader reports whether Resolve must see the first input line.
	NeedsHeader() bool

	// Resolve produces zero-based indices. header is the first input line when
	// NeedsHeader is true, otherwise "".
	Resolve(header, delim string) (FieldSet, error)
}

// Options configures one aggregation.
type Options struct {
	// Delimiter separates fields in input and output. Empty means
	// DefaultDelimiter.
	Delimiter string

	// Preserve treats the first input line as a header and echoes the key,
	// sum, count and average columns of it before the data.
	Preserve bool

	// Labels replaces the value columns of the header line. Implies Preserve.
	Labels []string

	// AutoLabel suffixes header value columns with -Sum, -Count or -Average.
	AutoLabel bool

	// NoSort emits keys in the order they were first seen instead of sorting.
	NoSort bool

	// Strict makes malformed numbers and table insert failures fatal.
	Strict bool

	// MaxGroups caps the number of distinct keys; 0 means unlimited.
	MaxGroups int

	// EmptyAverage is printed for averages with no contributing values.
	// Empty means DefaultEmptyAverage.
	EmptyAverage string

	// Collator orders key fields when sorting. Nil means ByteCollator.
	Collator Collator

	// Logger receives progress and anomaly messages. Nil means slog.Default().
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Delimiter == "" {
		o.Delimiter = DefaultDelimiter
	}
	if o.EmptyAverage == "" {
		o.EmptyAverage = DefaultEmptyAverage
	}
	if o.Collator == nil {
		o.Collator = ByteCollator{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// State is a step of the aggregation state machine.
type State int

const (
	StateInit State = iota
	StateResolving
	StateHeader
	StateAccumulating
	StateSorting
	StateEmitting
	StateDone
	StateFatal
)

var stateNames = [...]string{
	StateInit:         "init",
	StateResolving:    "resolving",
	StateHeader:       "header",
	StateAccumulating: "accumulating",
	StateSorting:      "sorting",
	StateEmitting:     "emitting",
	StateDone:         "done",
	StateFatal:        "fatal",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// Stats summarizes one aggregation.
type Stats struct {
	Lines            int64 // data lines accumulated, excluding the header
	Groups           int   // distinct keys emitted
	MalformedNumbers int64 // non-empty sum or average fields that did not parse
	InsertFailures   int64 // new keys the table refused
	BytesRead        int64
	Elapsed          time.Duration
}

// Aggregator runs a single aggregation. It is not safe for concurrent use and
// cannot be reused.
type Aggregator struct {
	resolver Resolver
	opts     Options
	log      *slog.Logger

	state  State
	fields FieldSet
	table  *Table

	sumPrecision     precisionTracker
	averagePrecision precisionTracker

	header    string
	hasHeader bool
	stats     Stats
	start     time.Time
}

// NewAggregator prepares an aggregation of the fields named by resolver.
func NewAggregator(resolver Resolver, opts Options) *Aggregator {
	opts = opts.withDefaults()
	return &Aggregator{
		resolver: resolver,
		opts:     opts,
		log:      opts.Logger,
		state:    StateInit,
	}
}

// State reports the current state.
func (a *Aggregator) State() State { return a.state }

// Fields returns the resolved field set. It is empty before resolution.
func (a *Aggregator) Fields() FieldSet { return a.fields }

// Stats returns counters for the work done so far.
func (a *Aggregator) Stats() Stats { return a.stats }

func (a *Aggregator) transition(s State) {
	a.log.Debug("aggregate state", "from", a.state.String(), "to", s.String())
	a.state = s
}

// fail moves to StateFatal, releasing every record.
func (a *Aggregator) fail(err error) error {
	a.transition(StateFatal)
	if a.table != nil {
		a.table.Reset()
	}
	return err
}

// Aggregate consumes src and returns the aggregated rows. Nothing is written
// anywhere: on error no partial Result is returned.
func (a *Aggregator) Aggregate(ctx context.Context, src Source) (*Result, error) {
	if a.state != StateInit {
		return nil, errors.New("aggregator already used")
	}
	a.start = time.Now()

	if a.resolver == nil {
		return nil, a.fail(ErrMissingKeys)
	}
	if err := a.resolver.Validate(); err != nil {
		return nil, a.fail(err)
	}
	a.transition(StateResolving)

	needsHeader := a.resolver.NeedsHeader()
	if !needsHeader {
		if err := a.resolve(""); err != nil {
			return nil, a.fail(err)
		}
	}

	if needsHeader || a.opts.Preserve || len(a.opts.Labels) > 0 {
		a.transition(StateHeader)
		line, err := src.ReadLine()
		if err == io.EOF {
			return nil, a.fail(ErrUnexpectedEOF)
		}
		if err != nil {
			return nil, a.fail(classifyReadError(err))
		}
		if needsHeader {
			if err := a.resolve(line); err != nil {
				return nil, a.fail(err)
			}
		}
		a.header = a.buildHeader(line)
		a.hasHeader = true
	}

	a.transition(StateAccumulating)
	if err := a.accumulate(ctx, src); err != nil {
		return nil, a.fail(err)
	}

	keys := a.table.Keys()
	if !a.opts.NoSort {
		a.transition(StateSorting)
		cmp := KeyComparator{Delimiter: a.opts.Delimiter, Collator: a.opts.Collator}
		slices.SortStableFunc(keys, cmp.Compare)
	}

	a.transition(StateEmitting)
	res := a.result(keys)
	a.stats.Groups = len(res.Rows)
	a.stats.BytesRead = src.BytesRead()
	a.stats.Elapsed = time.Since(a.start)
	res.Stats = a.stats
	a.transition(StateDone)

	a.log.Info("aggregation complete",
		"lines", a.stats.Lines,
		"groups", a.stats.Groups,
		"malformed_numbers", a.stats.MalformedNumbers,
		"insert_failures", a.stats.InsertFailures,
		"bytes", a.stats.BytesRead,
		"elapsed", a.stats.Elapsed,
	)
	return res, nil
}

func (a *Aggregator) resolve(header string) error {
	fields, err := a.resolver.Resolve(header, a.opts.Delimiter)
	if err != nil {
		return err
	}
	// Resolvers other than FieldSet get the same index checks.
	if fields, err = fields.Resolve("", ""); err != nil {
		return err
	}

	a.fields = fields
	a.table = NewTable(a.opts.MaxGroups)
	a.sumPrecision = newPrecisionTracker(len(fields.Sums))
	a.averagePrecision = newPrecisionTracker(len(fields.Averages))
	a.log.Debug("fields resolved",
		"keys", fields.Keys,
		"sums", fields.Sums,
		"counts", fields.Counts,
		"averages", fields.Averages,
	)
	return nil
}

// buildHeader echoes the key columns of line, then either the configured
// labels or the value columns.
func (a *Aggregator) buildHeader(line string) string {
	delim := a.opts.Delimiter
	var b strings.Builder
	b.WriteString(ExtractFields(line, delim, a.fields.Keys, ""))

	if len(a.opts.Labels) > 0 {
		b.WriteString(delim)
		b.WriteString(strings.Join(a.opts.Labels, delim))
		return b.String()
	}

	suffix := func(s string) string {
		if a.opts.AutoLabel {
			return s
		}
		return ""
	}
	for _, part := range []struct {
		indices []int
		suffix  string
	}{
		{a.fields.Sums, suffix(SumSuffix)},
		{a.fields.Counts, suffix(CountSuffix)},
		{a.fields.Averages, suffix(AverageSuffix)},
	} {
		if len(part.indices) == 0 {
			continue
		}
		b.WriteString(delim)
		b.WriteString(ExtractFields(line, delim, part.indices, part.suffix))
	}
	return b.String()
}

func (a *Aggregator) accumulate(ctx context.Context, src Source) error {
	for {
		if a.stats.Lines%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}

		line, err := src.ReadLine()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return classifyReadError(err)
		}
		a.stats.Lines++

		if err := a.accumulateLine(line); err != nil {
			return err
		}
	}
}

func (a *Aggregator) accumulateLine(line string) error {
	fields := SplitFields(line, a.opts.Delimiter)
	key := joinFields(fields, a.fields.Keys, a.opts.Delimiter)

	rec, stored := a.table.Lookup(key)
	if !stored {
		rec = NewRecord(a.fields)
	}

	for i, idx := range a.fields.Sums {
		text := fieldAt(fields, idx)
		if text == "" {
			continue
		}
		v, err := a.number(text, idx)
		if err != nil {
			return err
		}
		a.sumPrecision.observe(i, text)
		rec.Sums[i] += v
	}

	for i, idx := range a.fields.Averages {
		text := fieldAt(fields, idx)
		if text == "" {
			continue
		}
		v, err := a.number(text, idx)
		if err != nil {
			return err
		}
		a.averagePrecision.observe(i, text)
		rec.AverageSums[i] += v
		rec.AverageCounts[i]++
	}

	for i, idx := range a.fields.Counts {
		if fieldAt(fields, idx) != "" {
			rec.Counts[i]++
		}
	}

	if stored {
		return nil
	}
	if err := a.table.Insert(key, rec); err != nil {
		a.stats.InsertFailures++
		if a.opts.Strict {
			return err
		}
		if a.stats.InsertFailures == 1 {
			a.log.Warn("key dropped", "line", a.stats.Lines, "error", err)
		}
	}
	return nil
}

// number parses a sum or average field, counting malformed values.
func (a *Aggregator) number(text string, idx int) (float64, error) {
	v, ok := ParseNumber(text)
	if ok {
		return v, nil
	}

	a.stats.MalformedNumbers++
	if a.opts.Strict {
		return 0, fmt.Errorf("%w: line %d field %d: %q", ErrMalformedNumber, a.stats.Lines, idx+1, text)
	}
	if a.stats.MalformedNumbers == 1 {
		a.log.Warn("malformed number", "line", a.stats.Lines, "field", idx+1, "value", text, "parsed", v)
	}
	return v, nil
}

func (a *Aggregator) result(keys []string) *Result {
	rows := make([]Row, 0, len(keys))
	for _, key := range keys {
		rec, _ := a.table.Lookup(key)
		rows = append(rows, Row{Key: key, Record: rec})
	}
	return &Result{
		Header:           a.header,
		HasHeader:        a.hasHeader,
		Rows:             rows,
		Fields:           a.fields,
		Delimiter:        a.opts.Delimiter,
		SumPrecision:     slices.Clone(a.sumPrecision),
		AveragePrecision: slices.Clone(a.averagePrecision),
		EmptyAverage:     a.opts.EmptyAverage,
	}
}

// Run aggregates src and writes the text output to w. Output is written only
// after the whole input has been accumulated.
func Run(ctx context.Context, src Source, w io.Writer, resolver Resolver, opts Options) (*Result, error) {
	res, err := NewAggregator(resolver, opts).Aggregate(ctx, src)
	if err != nil {
		return nil, err
	}
	if _, err := res.WriteTo(w); err != nil {
		return res, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}

// classifyReadError tags plain read failures as input errors.
func classifyReadError(err error) error {
	if errors.Is(err, ErrInput) || errors.Is(err, ErrAllocation) {
		return err
	}
	return fmt.Errorf("%w: read input: %w", ErrInput, err)
}

func fieldAt(fields []string, idx int) string {
	if idx < 0 || idx >= len(fields) {
		return ""
	}
	return fields[idx]
}

// joinFields builds a composite key from already split fields.
func joinFields(fields []string, indices []int, delim string) string {
	if len(indices) == 1 {
		return fieldAt(fields, indices[0])
	}
	var b strings.Builder
	for i, idx := range indices {
		if i > 0 {
			b.WriteString(delim)
		}
		b.WriteString(fieldAt(fields, idx))
	}
	return b.String()
}
