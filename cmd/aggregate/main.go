// Binary aggregate groups delimited records by key fields and prints the sum,
// count and average of selected fields for every distinct key.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/jeremyhinds/crush-tools/internal/config"
	"github.com/jeremyhinds/crush-tools/internal/core"
	"github.com/jeremyhinds/crush-tools/internal/fieldspec"
	"github.com/jeremyhinds/crush-tools/internal/logging"
	"github.com/jeremyhinds/crush-tools/internal/sink"
)

const usage = `Usage: aggregate [options] [file ...]

Group delimited records by key fields and print the sum, count and average of
the selected fields for each distinct key. Files are read in order as one
stream; with no files, or the name "-", standard input is read. Options may
appear before or after file names; "--" ends option parsing.

Field lists are 1-based and may contain ranges (1,3-5). The label forms (-K,
-S, -C, -A) select fields by header label and imply a header line.

Without -d the DELIMITER environment variable is used, then 0xFE.

Exit status: 0 success, 1 usage error, 2 input or output error, 3 memory error.

Options:`

// options holds the parsed command line.
type options struct {
	spec fieldspec.Spec

	delim     string
	delimSet  bool
	labels    string
	preserve  bool
	autoLabel bool
	noSort    bool
	strict    bool
	locale    string

	format     string
	output     string
	pgTable    string
	pgTruncate bool
}

// stringFlag registers a flag under a short and a long name.
func stringFlag(fs *flag.FlagSet, p *string, short, long, help string) {
	fs.StringVar(p, short, "", help)
	fs.StringVar(p, long, "", "same as -"+short)
}

func boolFlag(fs *flag.FlagSet, p *bool, short, long, help string) {
	fs.BoolVar(p, short, false, help)
	fs.BoolVar(p, long, false, "same as -"+short)
}

func parseArgs(args []string, stderr io.Writer) (*options, []string, error) {
	var o options
	fs := flag.NewFlagSet("aggregate", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintln(stderr, usage)
		fs.PrintDefaults()
	}

	stringFlag(fs, &o.spec.Keys.Numbers, "k", "keys", "key `fields` (1-based list)")
	stringFlag(fs, &o.spec.Keys.Labels, "K", "key-labels", "key fields by header `labels`")
	stringFlag(fs, &o.spec.Sums.Numbers, "s", "sums", "`fields` to sum")
	stringFlag(fs, &o.spec.Sums.Labels, "S", "sum-labels", "header `labels` of fields to sum")
	stringFlag(fs, &o.spec.Counts.Numbers, "c", "counts", "`fields` to count (non-empty values)")
	stringFlag(fs, &o.spec.Counts.Labels, "C", "count-labels", "header `labels` of fields to count")
	stringFlag(fs, &o.spec.Averages.Numbers, "a", "averages", "`fields` to average")
	stringFlag(fs, &o.spec.Averages.Labels, "A", "average-labels", "header `labels` of fields to average")
	stringFlag(fs, &o.delim, "d", "delim", "field `delimiter`; escapes such as \\t and \\xfe are expanded")
	stringFlag(fs, &o.labels, "l", "labels", "comma-separated `labels` for the value columns of the header")
	boolFlag(fs, &o.preserve, "p", "preserve", "treat the first line as a header and echo it")
	boolFlag(fs, &o.autoLabel, "L", "auto-label", "suffix header value columns with -Sum, -Count, -Average")
	boolFlag(fs, &o.noSort, "n", "nosort", "print keys in order of first appearance")

	fs.BoolVar(&o.strict, "strict", false, "fail on malformed numbers and dropped keys")
	fs.StringVar(&o.locale, "locale", "", "collation `locale` for sorting keys (default from AGG_LOCALE, LC_ALL, LC_COLLATE, LANG)")
	fs.StringVar(&o.format, "format", "text", "output `format`: text, json or parquet")
	fs.StringVar(&o.output, "o", "", "write output to `file` instead of standard output")
	fs.StringVar(&o.pgTable, "pg-table", "", "copy results into PostgreSQL `table` (uses DATABASE_URL) instead of printing")
	fs.BoolVar(&o.pgTruncate, "pg-truncate", false, "empty the PostgreSQL table before copying")

	// Options may follow file names; "--" ends option parsing.
	var paths []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, nil, err
		}
		rest := fs.Args()
		if len(rest) == 0 {
			break
		}
		if n := len(args) - len(rest); n > 0 && args[n-1] == "--" {
			paths = append(paths, rest...)
			break
		}
		paths = append(paths, rest[0])
		args = rest[1:]
	}
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "d" || f.Name == "delim" {
			o.delimSet = true
		}
	})

	switch o.format {
	case "text", "json", "parquet":
	default:
		return nil, nil, fmt.Errorf("%w: unknown format %q", core.ErrUsage, o.format)
	}
	return &o, paths, nil
}

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run executes the command and returns the exit status.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	opts, paths, err := parseArgs(args, stderr)
	switch {
	case errors.Is(err, core.ErrUsage):
		return fail(stderr, err)
	case err != nil:
		// The flag package has already printed the problem or the help text.
		return core.ExitHelp
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(stderr, "aggregate: %v\n", err)
		return core.ExitHelp
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format, stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logging.ContextWithRunID(ctx, logging.NewRunID())
	logger := logging.FromContext(ctx)

	aggOpts, err := aggregateOptions(opts, cfg.Aggregate, logger)
	if err != nil {
		return fail(stderr, err)
	}

	// Usage problems and the destination are checked before reading input.
	if err := opts.spec.Validate(); err != nil {
		return fail(stderr, err)
	}
	var pg *sink.Postgres
	if opts.pgTable != "" {
		pool, err := sink.OpenPool(ctx, cfg.Database)
		if errors.Is(err, sink.ErrNoDatabase) {
			return fail(stderr, fmt.Errorf("%w: %w", core.ErrUsage, err))
		}
		if err != nil {
			return fail(stderr, fmt.Errorf("%w: %w", core.ErrInput, err))
		}
		defer pool.Close()
		pg = &sink.Postgres{Pool: pool, Table: opts.pgTable, Truncate: opts.pgTruncate}
	}

	src := core.NewFileSource(paths, stdin, cfg.Aggregate.MaxLineBytes)
	defer src.Close()

	res, err := core.NewAggregator(opts.spec, aggOpts).Aggregate(ctx, src)
	if err != nil {
		logger.Debug("aggregation failed", "error", err)
		return fail(stderr, err)
	}

	if pg != nil {
		if err := pg.Write(ctx, res); err != nil {
			return fail(stderr, fmt.Errorf("%w: %w", core.ErrInput, err))
		}
		return core.ExitOK
	}

	if err := writeOutput(ctx, opts, res, stdout); err != nil {
		return fail(stderr, fmt.Errorf("%w: %w", core.ErrInput, err))
	}
	return core.ExitOK
}

// aggregateOptions combines the command line with configured defaults.
func aggregateOptions(o *options, defaults config.AggregateConfig, logger *slog.Logger) (core.Options, error) {
	delim := defaults.Delimiter
	if o.delimSet {
		delim = o.delim
	}
	decoded, err := config.DecodeDelimiter(delim)
	if err != nil {
		return core.Options{}, fmt.Errorf("%w: invalid delimiter %q", core.ErrUsage, delim)
	}
	if o.delimSet && decoded == "" {
		return core.Options{}, fmt.Errorf("%w: invalid delimiter %q", core.ErrUsage, delim)
	}

	locale := defaults.Locale
	if o.locale != "" {
		locale = o.locale
	}
	collator, localized := core.CollatorForLocale(locale)
	logger.Debug("collation", "locale", locale, "localized", localized)

	return core.Options{
		Delimiter:    decoded,
		Preserve:     o.preserve,
		Labels:       fieldspec.SplitLabels(o.labels),
		AutoLabel:    o.autoLabel,
		NoSort:       o.noSort,
		Strict:       o.strict || defaults.Strict,
		MaxGroups:    defaults.MaxGroups,
		EmptyAverage: defaults.EmptyAverage,
		Collator:     collator,
		Logger:       logger,
	}, nil
}

// writeOutput writes res in the requested format to -o or stdout.
func writeOutput(ctx context.Context, o *options, res *core.Result, stdout io.Writer) error {
	w := stdout
	if o.output != "" {
		f, err := os.Create(o.output)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		// The Parquet writer closes the file itself.
		defer func() {
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				slog.Warn("failed to close output", "path", o.output, "error", err)
			}
		}()
		w = f
	}

	var out sink.Sink
	switch o.format {
	case "json":
		out = sink.JSON{W: w, Indent: true}
	case "parquet":
		out = sink.Parquet{W: w}
	default:
		out = sink.Text{W: w}
	}
	return out.Write(ctx, res)
}

// fail prints the user-facing rendering of err and returns its exit status.
func fail(stderr io.Writer, err error) int {
	fmt.Fprintf(stderr, "aggregate: %s\n", core.FormatUserError(err))
	return core.ExitCode(err)
}
