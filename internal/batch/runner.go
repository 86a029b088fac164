// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/collect"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Item statuses.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// QueryFetcher fetches one query. *collect.Fetcher satisfies it.
type QueryFetcher interface {
	FetchQuery(ctx context.Context, spec collect.QuerySpec) (collect.Outcome, error)
}

// Options are the batch-wide defaults.
type Options struct {
	TargetRange       string
	Language          string
	Categories        []string
	OversampleFactor  int
	DefaultMaxResults int
	MaxResultsCap     int
	ContinueOnError   bool
	Force             bool
}

// ItemResult reports one executed plan item.
type ItemResult struct {
	Index           int              `json:"index"`
	Label           string           `json:"label"`
	Query           string           `json:"query"`
	Status          string           `json:"status"`
	Error           string           `json:"error,omitempty"`
	MaxResults      int              `json:"max_results"`
	Language        string           `json:"language"`
	Categories      []string         `json:"categories"`
	DurationSeconds float64          `json:"duration_seconds"`
	Result          *collect.Outcome `json:"result,omitempty"`
}

// Summary reports a batch. Only attempted items are counted.
type Summary struct {
	RunDir            string             `json:"run_dir"`
	PlanJSON          string             `json:"plan_json"`
	QueryCount        int                `json:"query_count"`
	DefaultLanguage   string             `json:"default_language"`
	TargetMax         int                `json:"target_max"`
	TargetPerQuery    int                `json:"target_per_query"`
	AutoMaxResults    int                `json:"auto_max_results"`
	RateLimitDefaults types.FetchControl `json:"rate_limit_defaults"`
	Executed          int                `json:"executed"`
	Failed            int                `json:"failed"`
	Succeeded         int                `json:"succeeded"`
	Results           []ItemResult       `json:"results"`
}

// Err reports whether any attempted item failed.
func (s Summary) Err() error {
	if s.Failed > 0 {
		return fmt.Errorf("%d of %d queries failed", s.Failed, s.Executed)
	}
	return nil
}

// Runner executes plans sequentially.
type Runner struct {
	fetcher QueryFetcher
	log     *zap.Logger
}

// NewRunner returns a Runner.
func NewRunner(f QueryFetcher, log *zap.Logger) *Runner {
	return &Runner{fetcher: f, log: logger.OrNop(log)}
}

// RunBatch fetches every plan item in order. Without ContinueOnError it
// stops at the first failure. A cancelled context stops before the next item.
func (r *Runner) RunBatch(ctx context.Context, plan Plan, opts Options) Summary {
	oversample := opts.OversampleFactor
	if oversample <= 0 {
		oversample = DefaultOversampleFactor
	}
	maxCap := opts.MaxResultsCap
	if maxCap <= 0 {
		maxCap = DefaultMaxResultsCap
	}

	targetMax := ParseTargetMax(opts.TargetRange)
	perQuery, auto := AutoMaxResults(targetMax, len(plan.Items), oversample, opts.DefaultMaxResults, maxCap)

	sum := Summary{
		QueryCount:      len(plan.Items),
		DefaultLanguage: opts.Language,
		TargetMax:       targetMax,
		TargetPerQuery:  perQuery,
		AutoMaxResults:  auto,
		Results:         []ItemResult{},
	}
	r.log.Info("starting batch",
		zap.Int("queries", sum.QueryCount),
		zap.Int("target_max", targetMax),
		zap.Int("auto_max_results", auto))

	for i, item := range plan.Items {
		if err := ctx.Err(); err != nil {
			r.log.Warn("batch interrupted", zap.Int("remaining", len(plan.Items)-i), zap.Error(err))
			break
		}

		spec := r.specFor(item, opts, auto)
		res := ItemResult{
			Index:      i,
			Label:      spec.Label,
			Query:      spec.Query,
			MaxResults: spec.MaxResults,
			Language:   spec.Language,
			Categories: spec.Categories,
		}

		start := time.Now()
		out, err := r.fetcher.FetchQuery(ctx, spec)
		res.DurationSeconds = time.Since(start).Round(time.Millisecond).Seconds()
		res.Result = &out
		sum.Executed++

		if err != nil {
			res.Status = StatusError
			res.Error = err.Error()
			sum.Failed++
			sum.Results = append(sum.Results, res)
			r.log.Error("query failed",
				zap.Int("item", i+1), zap.Int("of", sum.QueryCount),
				zap.String("label", spec.Label), zap.Error(err))
			if !opts.ContinueOnError {
				break
			}
			continue
		}

		res.Status = StatusOK
		sum.Succeeded++
		sum.Results = append(sum.Results, res)
		r.log.Info("query done",
			zap.Int("item", i+1), zap.Int("of", sum.QueryCount),
			zap.String("label", spec.Label),
			zap.Bool("cache_hit", out.CacheHit),
			zap.Int("results", out.APIReturnedCount))
	}
	return sum
}

func (r *Runner) specFor(item PlanItem, opts Options, auto int) collect.QuerySpec {
	maxResults := item.MaxResults
	if maxResults <= 0 {
		maxResults = auto
	}
	categories := []string(item.Categories)
	if len(categories) == 0 {
		categories = opts.Categories
	}
	if categories == nil {
		categories = []string{}
	}
	language := item.Language
	if language == "" {
		language = opts.Language
	}
	return collect.QuerySpec{
		Label:      item.Label,
		Query:      item.Query,
		Categories: categories,
		FromDate:   item.FromDate,
		ToDate:     item.ToDate,
		Language:   language,
		Start:      item.Start,
		MaxResults: maxResults,
		SortBy:     item.SortBy,
		SortOrder:  item.SortOrder,
		Force:      opts.Force,
	}
}
