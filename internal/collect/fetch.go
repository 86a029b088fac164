// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package collect

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/arxiv"
	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/report"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// DefaultMaxResults is the page size of a standalone fetch.
const DefaultMaxResults = 40

// Searcher runs one API request. *arxiv.Client satisfies it.
type Searcher interface {
	Search(ctx context.Context, p types.RequestParams) (arxiv.Response, error)
}

// QuerySpec describes one labelled query. Empty fields fall back to the
// run's task metadata (dates, categories, language) or to API defaults.
type QuerySpec struct {
	Label      string
	Query      string
	Categories []string
	FromDate   string
	ToDate     string
	Language   string
	Start      int
	MaxResults int
	SortBy     string
	SortOrder  string
	Force      bool
}

// Outcome summarizes a fetch. It is printed as the command's JSON result.
type Outcome struct {
	Label              string  `json:"label"`
	QueryJSON          string  `json:"query_json"`
	QueryMD            string  `json:"query_md"`
	APIReturnedCount   int     `json:"api_returned_count"`
	Language           string  `json:"language"`
	LanguageNormalized string  `json:"language_normalized"`
	CacheHit           bool    `json:"cache_hit"`
	RequestAttempts    int     `json:"request_attempts"`
	RequestWaitSeconds float64 `json:"request_wait_seconds"`
	RateStatePath      string  `json:"rate_state_path"`
}

// Fetcher fetches queries into one run directory.
type Fetcher struct {
	run      *rundir.Run
	searcher Searcher
	cache    *Cache
	control  types.FetchControl
	now      func() time.Time
	log      *zap.Logger
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClock replaces the clock used for generated_at and reused_at stamps.
func WithClock(now func() time.Time) Option {
	return func(f *Fetcher) { f.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Fetcher) { f.log = logger.OrNop(l) }
}

// NewFetcher returns a Fetcher. control is recorded in every fresh result
// set; its RateStatePath is also stamped onto reused sets.
func NewFetcher(run *rundir.Run, searcher Searcher, control types.FetchControl, opts ...Option) *Fetcher {
	f := &Fetcher{
		run:      run,
		searcher: searcher,
		control:  control,
		now:      time.Now,
		log:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.cache = NewCache(run, f.log)
	return f
}

// Run returns the run directory the fetcher writes to.
func (f *Fetcher) Run() *rundir.Run { return f.run }

// FetchQuery resolves spec against the run defaults, then either reuses the
// stored result set or fetches a fresh page. Input is fully validated before
// any request or write. The result set and its Markdown are written
// atomically, and the fetch is logged in task_meta.json.
//
// On a fetch failure the returned Outcome still reports the attempts and
// waits spent.
func (f *Fetcher) FetchQuery(ctx context.Context, spec QuerySpec) (Outcome, error) {
	meta, err := f.run.LoadTaskMeta()
	if err != nil {
		return Outcome{}, err
	}

	query := strings.TrimSpace(spec.Query)
	if query == "" {
		return Outcome{}, fmt.Errorf("query is required")
	}
	label := strings.TrimSpace(spec.Label)
	if label == "" {
		label = rundir.Slugify(query, "query")
	}
	if err := ValidateLabel(label); err != nil {
		return Outcome{}, err
	}

	language := rundir.Language(spec.Language, meta)
	lang := report.NormalizeLanguage(language)

	fromDate := firstNonEmpty(spec.FromDate, meta.Params.FromDate)
	toDate := firstNonEmpty(spec.ToDate, meta.Params.ToDate)
	if fromDate == "" || toDate == "" {
		return Outcome{}, fmt.Errorf("date window missing: set from/to dates or initialize the run with one")
	}
	if err := arxiv.ValidateDateWindow(fromDate, toDate); err != nil {
		return Outcome{}, err
	}

	categories := spec.Categories
	if len(categories) == 0 {
		categories = meta.Params.Categories
	}
	if categories == nil {
		categories = []string{}
	}

	effective, err := arxiv.AttachSubmittedDateClause(arxiv.BuildEffectiveQuery(query, categories), fromDate, toDate)
	if err != nil {
		return Outcome{}, err
	}

	maxResults := spec.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	params, err := arxiv.NewRequestParams(effective, spec.Start, maxResults, spec.SortBy, spec.SortOrder)
	if err != nil {
		return Outcome{}, err
	}

	out := Outcome{
		Label:              label,
		QueryJSON:          f.run.QueryResultJSON(label),
		QueryMD:            f.run.QueryResultMD(label),
		Language:           language,
		LanguageNormalized: lang,
		RateStatePath:      f.control.RateStatePath,
	}
	log := f.log.With(zap.String("label", label))

	fp := Fingerprint{
		Label:          label,
		Query:          query,
		EffectiveQuery: effective,
		Categories:     categories,
		FromDate:       fromDate,
		ToDate:         toDate,
		Request:        params,
	}

	var set types.QueryResultSet
	if lookup := f.cache.Lookup(fp, spec.Force); lookup.Hit {
		set = *lookup.Set
		set.Language = language
		set.LanguageNormalized = lang
		set.FetchControl.RateStatePath = f.control.RateStatePath
		set.ReusedAt = f.now().UTC().Format(time.RFC3339Nano)
		out.CacheHit = true
		log.Info("reusing cached result set", zap.Int("results", len(set.Results)))
	} else {
		log.Info("fetching query",
			zap.String("reason", lookup.Reason),
			zap.String("search_query", params.SearchQuery),
			zap.Int("max_results", params.MaxResults))

		resp, err := f.searcher.Search(ctx, params)
		out.RequestAttempts = resp.Attempts
		out.RequestWaitSeconds = roundSeconds(resp.Waited)
		if err != nil {
			return out, fmt.Errorf("fetching %s: %w", label, err)
		}

		set = types.QueryResultSet{
			GeneratedAt:        f.now().UTC().Format(time.RFC3339Nano),
			Label:              label,
			Query:              query,
			EffectiveQuery:     effective,
			Categories:         categories,
			FromDate:           fromDate,
			ToDate:             toDate,
			Language:           language,
			LanguageNormalized: lang,
			Request:            params,
			Results:            resp.Feed.Items,
			FetchControl:       f.control,
		}
		if set.Results == nil {
			set.Results = []types.ResultItem{}
		}
		log.Info("query fetched",
			zap.Int("results", len(set.Results)),
			zap.Int("total_available", resp.Feed.TotalResults),
			zap.Int("attempts", resp.Attempts),
			zap.Duration("waited", resp.Waited))
	}
	out.APIReturnedCount = len(set.Results)

	if err := f.writeResultSet(set, lang); err != nil {
		return out, err
	}

	err = f.run.UpdateTaskMeta(ctx, func(m *types.TaskMeta) {
		m.QueryPlan = append(m.QueryPlan, types.QueryPlanEntry{
			Label:          label,
			Query:          query,
			EffectiveQuery: effective,
			CacheHit:       out.CacheHit,
		})
		m.QueryFetchLogs = append(m.QueryFetchLogs, types.FetchLogEntry{
			Label:              label,
			APIReturnedCount:   out.APIReturnedCount,
			DateFilterMode:     "api_submittedDate",
			JSONPath:           out.QueryJSON,
			MDPath:             out.QueryMD,
			Language:           language,
			LanguageNormalized: lang,
			CacheHit:           out.CacheHit,
			RequestAttempts:    out.RequestAttempts,
			RequestWaitSeconds: out.RequestWaitSeconds,
			RateStatePath:      out.RateStatePath,
		})
	})
	if err != nil {
		return out, err
	}
	return out, nil
}

func (f *Fetcher) writeResultSet(set types.QueryResultSet, lang string) error {
	md, err := report.QueryResult(set, lang)
	if err != nil {
		return err
	}
	if err := fsutil.WriteJSON(f.run.QueryResultJSON(set.Label), set); err != nil {
		return fmt.Errorf("writing result set: %w", err)
	}
	if err := fsutil.WriteFileAtomic(f.run.QueryResultMD(set.Label), []byte(md), 0o644); err != nil {
		return fmt.Errorf("writing result markdown: %w", err)
	}
	return nil
}

// ValidateLabel rejects labels that cannot be used as a file name inside
// query_results/.
func ValidateLabel(label string) error {
	if label == "" || label == "." || label == ".." || strings.ContainsAny(label, `/\`) {
		return fmt.Errorf("invalid label %q", label)
	}
	return nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
