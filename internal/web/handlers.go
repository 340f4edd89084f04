package web

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/jeremyhinds/crush-tools/internal/config"
	"github.com/jeremyhinds/crush-tools/internal/core"
	"github.com/jeremyhinds/crush-tools/internal/fieldspec"
	"github.com/jeremyhinds/crush-tools/internal/logging"
	"github.com/jeremyhinds/crush-tools/internal/sink"
	"github.com/jeremyhinds/crush-tools/internal/web/templates"
)

// aggregateRequest is an aggregation described by query parameters.
type aggregateRequest struct {
	spec   fieldspec.Spec
	opts   core.Options
	locale string
}

// parseAggregateRequest reads the query parameters of an aggregation request.
// Parameter names mirror the long command line flags.
func parseAggregateRequest(q url.Values, defaults config.AggregateConfig) (aggregateRequest, error) {
	req := aggregateRequest{
		spec: fieldspec.Spec{
			Keys:     fieldspec.Selector{Numbers: q.Get("keys"), Labels: q.Get("key_labels")},
			Sums:     fieldspec.Selector{Numbers: q.Get("sums"), Labels: q.Get("sum_labels")},
			Counts:   fieldspec.Selector{Numbers: q.Get("counts"), Labels: q.Get("count_labels")},
			Averages: fieldspec.Selector{Numbers: q.Get("averages"), Labels: q.Get("average_labels")},
		},
		locale: defaults.Locale,
	}
	if err := req.spec.Validate(); err != nil {
		return req, err
	}

	delim := defaults.Delimiter
	if q.Has("delimiter") {
		delim = q.Get("delimiter")
	}
	decoded, err := config.DecodeDelimiter(delim)
	if err != nil {
		return req, fmt.Errorf("%w: invalid delimiter %q", core.ErrUsage, delim)
	}

	req.opts = core.Options{
		Delimiter:    decoded,
		Labels:       fieldspec.SplitLabels(q.Get("labels")),
		MaxGroups:    defaults.MaxGroups,
		EmptyAverage: defaults.EmptyAverage,
		Strict:       defaults.Strict,
	}

	for _, flag := range []struct {
		name string
		dst  *bool
	}{
		{"preserve", &req.opts.Preserve},
		{"auto_label", &req.opts.AutoLabel},
		{"nosort", &req.opts.NoSort},
		{"strict", &req.opts.Strict},
	} {
		if !q.Has(flag.name) {
			continue
		}
		v := q.Get(flag.name)
		if v == "" {
			*flag.dst = true
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return req, fmt.Errorf("%w: invalid %s parameter %q", core.ErrUsage, flag.name, v)
		}
		*flag.dst = b
	}

	if q.Has("locale") {
		req.locale = q.Get("locale")
	}
	return req, nil
}

// aggregate runs the aggregation described by r's query over r's body. It
// holds a limiter slot for the duration of the run.
func (s *Server) aggregate(ctx context.Context, w http.ResponseWriter, r *http.Request) (*core.Result, error) {
	req, err := parseAggregateRequest(r.URL.Query(), s.cfg.Aggregate)
	if err != nil {
		return nil, err
	}

	if err := s.limiter.Acquire(ctx); err != nil {
		return nil, err
	}
	defer s.limiter.Release()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Service.Timeout)
	defer cancel()

	// Collators are not safe for concurrent use; each request builds its own.
	collator, localized := core.CollatorForLocale(req.locale)
	req.opts.Collator = collator
	req.opts.Logger = logging.FromContext(ctx)

	body := http.MaxBytesReader(w, r.Body, s.cfg.Service.MaxBodySize)
	src := core.NewReaderSourceLimit(body, s.cfg.Aggregate.MaxLineBytes)
	defer src.Close()

	req.opts.Logger.Debug("aggregation started",
		"locale", req.locale,
		"localized", localized,
		"strict", req.opts.Strict,
	)
	return core.NewAggregator(req.spec, req.opts).Aggregate(ctx, src)
}

// startRun tags the request with a fresh run ID.
func startRun(w http.ResponseWriter, r *http.Request) context.Context {
	runID := logging.NewRunID()
	w.Header().Set("X-Run-ID", runID)
	return logging.ContextWithRunID(r.Context(), runID)
}

// handleAggregate aggregates the request body and returns the delimited text
// output, or JSON when the client asks for it.
func (s *Server) handleAggregate(w http.ResponseWriter, r *http.Request) {
	ctx := startRun(w, r)
	r = r.WithContext(ctx)

	res, err := s.aggregate(ctx, w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	setStatsHeaders(w, res.Stats)

	var out sink.Sink
	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		out = sink.JSON{W: w}
	} else {
		w.Header().Set("Content-Type", "text/plain")
		out = sink.Text{W: w}
	}
	if err := out.Write(ctx, res); err != nil {
		// Headers are already sent
		logging.FromContext(ctx).Error("failed to write response", "error", err)
	}
}

// handleReport aggregates the request body and renders an HTML table.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	ctx := startRun(w, r)
	r = r.WithContext(ctx)

	res, err := s.aggregate(ctx, w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	title := r.URL.Query().Get("title")
	if title == "" {
		title = "Aggregation report"
	}

	setStatsHeaders(w, res.Stats)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := templates.Report(reportView(title, logging.RunID(ctx), res)).Render(ctx, w); err != nil {
		logging.FromContext(ctx).Error("failed to render report", "error", err)
	}
}

// reportView flattens a result into template cells. Cells are converted to
// valid UTF-8 since the default delimiter byte is not.
func reportView(title, runID string, res *core.Result) templates.ReportView {
	v := templates.ReportView{
		Title:   title,
		RunID:   runID,
		Lines:   res.Stats.Lines,
		Groups:  res.Stats.Groups,
		Skipped: int(res.Stats.MalformedNumbers + res.Stats.InsertFailures),
		Rows:    make([][]string, 0, len(res.Rows)),
	}
	for _, c := range res.HeaderFields() {
		v.Columns = append(v.Columns, strings.ToValidUTF8(c, "\uFFFD"))
	}
	for _, row := range res.Rows {
		cells := res.KeyFields(row)
		for i := range cells {
			cells[i] = strings.ToValidUTF8(cells[i], "\uFFFD")
		}
		v.Rows = append(v.Rows, append(cells, res.Values(row)...))
	}
	return v
}

func setStatsHeaders(w http.ResponseWriter, stats core.Stats) {
	w.Header().Set("X-Aggregate-Lines", strconv.FormatInt(stats.Lines, 10))
	w.Header().Set("X-Aggregate-Groups", strconv.Itoa(stats.Groups))
}

// handleHealth reports liveness and limiter usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, map[string]any{
		"status":  "ok",
		"limiter": s.limiter.Status(),
	})
}
