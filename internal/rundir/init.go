// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rundir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pdiddy/paper-collector/internal/report"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Defaults applied by Init.
const (
	DefaultTargetRange = "5-10"
	DefaultLookback    = "7d"
	DefaultLanguage    = "English"
)

const dateLayout = "2006-01-02"

// InitOptions describes a new run.
type InitOptions struct {
	OutputRoot  string
	Topic       string
	Keywords    []string
	Categories  []string
	TargetRange string
	Lookback    string
	FromDate    string
	ToDate      string
	RunName     string
	Notes       string
	Language    string

	// Now defaults to time.Now.
	Now func() time.Time
}

// Init creates a run directory with its layout and task metadata. The
// directory is named "<topic-slug>-<UTC YYYYmmdd-HHMMSS>-<range>" unless
// RunName is set.
func Init(opts InitOptions) (*Run, types.TaskMeta, error) {
	if strings.TrimSpace(opts.OutputRoot) == "" {
		return nil, types.TaskMeta{}, fmt.Errorf("output root is required")
	}
	if strings.TrimSpace(opts.Topic) == "" {
		return nil, types.TaskMeta{}, fmt.Errorf("topic is required")
	}
	if opts.TargetRange == "" {
		opts.TargetRange = DefaultTargetRange
	}
	if opts.Lookback == "" {
		opts.Lookback = DefaultLookback
	}
	if opts.Language == "" {
		opts.Language = DefaultLanguage
	}
	now := time.Now
	if opts.Now != nil {
		now = opts.Now
	}
	at := now().UTC()

	from, to, rangeLabel, err := ResolveWindow(opts.FromDate, opts.ToDate, opts.Lookback, at)
	if err != nil {
		return nil, types.TaskMeta{}, err
	}

	root, err := filepath.Abs(opts.OutputRoot)
	if err != nil {
		return nil, types.TaskMeta{}, fmt.Errorf("resolving output root: %w", err)
	}
	name := strings.TrimSpace(opts.RunName)
	if name == "" {
		name = fmt.Sprintf("%s-%s-%s", Slugify(opts.Topic, "topic"), at.Format("20060102-150405"), rangeLabel)
	}
	run := &Run{Dir: filepath.Join(root, name)}

	for _, dir := range []string{run.Dir, run.QueryResultsPath(), run.SelectionPath()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, types.TaskMeta{}, fmt.Errorf("creating %s: %w", dir, err)
		}
	}

	meta := types.TaskMeta{
		GeneratedAt: at.Format(time.RFC3339Nano),
		RunDir:      run.Dir,
		Params: types.TaskParams{
			Topic:              opts.Topic,
			Keywords:           nonNil(opts.Keywords),
			Categories:         nonNil(opts.Categories),
			TargetRange:        opts.TargetRange,
			Lookback:           opts.Lookback,
			FromDate:           from,
			ToDate:             to,
			Language:           opts.Language,
			LanguageNormalized: report.NormalizeLanguage(opts.Language),
		},
		Notes:          opts.Notes,
		QueryPlan:      []types.QueryPlanEntry{},
		QueryFetchLogs: []types.FetchLogEntry{},
		SelectionLogs:  []types.SelectionLogEntry{},
	}
	if err := run.saveTaskMeta(meta); err != nil {
		return nil, types.TaskMeta{}, err
	}
	return run, meta, nil
}

// ResolveWindow turns explicit dates or a lookback into a from/to date pair
// and the range label used in run names. toDate defaults to now; fromDate
// defaults to toDate minus the lookback.
func ResolveWindow(fromDate, toDate, lookback string, now time.Time) (string, string, string, error) {
	toT := now.UTC()
	if toDate != "" {
		t, err := time.Parse(dateLayout, toDate)
		if err != nil {
			return "", "", "", fmt.Errorf("invalid to date %q (want YYYY-MM-DD)", toDate)
		}
		toT = t.Add(24*time.Hour - time.Second)
	}

	var (
		fromT time.Time
		label string
	)
	if fromDate != "" {
		t, err := time.Parse(dateLayout, fromDate)
		if err != nil {
			return "", "", "", fmt.Errorf("invalid from date %q (want YYYY-MM-DD)", fromDate)
		}
		fromT = t
		label = fromT.Format(dateLayout) + "_to_" + toT.Format(dateLayout)
	} else {
		d, err := ParseLookback(lookback)
		if err != nil {
			return "", "", "", err
		}
		fromT = toT.Add(-d)
		label = strings.ReplaceAll(strings.TrimSpace(lookback), " ", "")
	}

	if fromT.After(toT) {
		return "", "", "", fmt.Errorf("from date %s is after to date %s", fromT.Format(dateLayout), toT.Format(dateLayout))
	}
	return fromT.Format(dateLayout), toT.Format(dateLayout), label, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
