// Package core provides the group-by aggregation engine behind the aggregate
// command.
//
// This package holds all aggregation logic independent of any CLI or transport
// layer. It is used by cmd/aggregate, the HTTP service in internal/web, and
// tests without modification.
//
// # Architecture
//
// The package is organized leaf-first:
//
//   - Field extraction: [ExtractField] and [ExtractFields] locate fields in a
//     delimited record by zero-based index.
//   - Precision tracking: [FractionalDigits] records how many digits follow the
//     decimal point so output is never less precise than the input.
//   - Records and tables: a [Record] accumulates sums, counts and average
//     numerators/denominators for one composite key; a [Table] owns every
//     Record and iterates them in discovery order.
//   - Driver: an [Aggregator] walks the states Init, Resolving, Header,
//     Accumulating, Sorting and Emitting, and produces a [Result].
//   - Emission: [Result.WriteTo] prints one line per key; sinks in
//     internal/sink consume the same Result.
//
// # Running an aggregation
//
//	src := core.NewReaderSource(os.Stdin)
//	fields := core.FieldSet{Keys: []int{0}, Sums: []int{1}}
//	res, err := core.Run(ctx, src, os.Stdout, fields, core.Options{Delimiter: ","})
//
// Input "a,10.5", "a,2", "b,3.25" prints "a,12.50" and "b,3.25": precision is
// tracked per field over the whole input.
//
// # Sorting
//
// Unless [Options.NoSort] is set, keys are sorted field by field with a
// [KeyComparator]. Collation is injected through [Options.Collator]; see
// [CollatorForLocale] for building one from a POSIX locale name.
//
// # Error Handling
//
// Errors fall into three classes, tested with errors.Is:
//
//   - [ErrUsage]: missing or invalid field specifiers (exit status 1)
//   - [ErrInput]: unreadable sources, truncated headers, and malformed numbers
//     in strict mode (exit status 2)
//   - [ErrAllocation]: buffer or table growth limits (exit status 3)
//
// [ExitCode] maps an error to its exit status and [MapError] to a message with a
// support code.
package core
