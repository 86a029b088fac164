// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selection

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/arxiv"
	"github.com/pdiddy/paper-collector/internal/collect"
	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/metrics"
	"github.com/pdiddy/paper-collector/internal/report"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/pkg/types"
)

var (
	// ErrMissingResultSet is returned when a selected label has no stored
	// result set. The merge aborts before writing anything.
	ErrMissingResultSet = errors.New("query result set missing")

	// ErrNoLabels is returned when neither the request nor the previous
	// manifest names any label.
	ErrNoLabels = errors.New("no query labels selected")
)

// Request describes one merge.
type Request struct {
	Spec        KeepSpec
	Incremental bool
	SortMode    SortMode
	MaxFinal    int
	Language    string
}

// Summary is the machine-readable result of a merge.
type Summary struct {
	RunDir                string   `json:"run_dir"`
	SelectedLabels        []string `json:"selected_labels"`
	FinalPaperCount       int      `json:"final_paper_count"`
	PapersIndexJSON       string   `json:"papers_index_json"`
	ZeroKeepLabels        []string `json:"zero_keep_labels"`
	UnresolvedRefs        int      `json:"unresolved_refs"`
	Incremental           bool     `json:"incremental"`
	SortBy                string   `json:"sort_by"`
	RemovedStalePaperDirs int      `json:"removed_stale_paper_dirs"`
	Language              string   `json:"language"`
	LanguageNormalized    string   `json:"language_normalized"`
}

// Merger merges selections within one run directory.
type Merger struct {
	run *rundir.Run
	now func() time.Time
	log *zap.Logger
}

// Option configures a Merger.
type Option func(*Merger)

// WithClock replaces the clock used for the selection log stamp.
func WithClock(now func() time.Time) Option {
	return func(m *Merger) { m.now = now }
}

// WithLogger attaches a logger.
func WithLogger(l *zap.Logger) Option {
	return func(m *Merger) { m.log = logger.OrNop(l) }
}

// NewMerger returns a Merger for run.
func NewMerger(run *rundir.Run, opts ...Option) *Merger {
	m := &Merger{run: run, now: time.Now, log: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// resolved is one label's selection against its result set.
type resolved struct {
	label string
	entry types.SelectionEntry
	items []types.ResultItem
}

// Merge resolves every label's keep list against its stored result set,
// deduplicates across labels by stable id, sorts, truncates and writes the
// corpus. All result sets are loaded before the first write.
func (m *Merger) Merge(ctx context.Context, req Request) (Summary, error) {
	mode, err := ParseSortMode(string(req.SortMode))
	if err != nil {
		return Summary{}, err
	}
	meta, err := m.run.LoadTaskMeta()
	if err != nil {
		return Summary{}, err
	}
	language := rundir.Language(req.Language, meta)
	lang := report.NormalizeLanguage(language)

	spec := req.Spec
	if req.Incremental {
		spec = m.previousSpec().Overlay(req.Spec)
	}
	spec = spec.Normalized()

	labels := spec.Labels()
	if len(labels) == 0 {
		return Summary{}, fmt.Errorf("%w: pass --keep, --keep-id or --selection-json, or --incremental with an existing selection", ErrNoLabels)
	}

	total := 0
	zeroKeep := []string{}
	for _, l := range labels {
		if err := collect.ValidateLabel(l); err != nil {
			return Summary{}, err
		}
		total += spec[l].Len()
		if spec[l].Empty() {
			zeroKeep = append(zeroKeep, l)
		}
	}
	if total == 0 {
		m.log.Warn("all keep selections are empty; the merged corpus will contain zero papers")
	}

	var (
		selections []resolved
		unresolved int
	)
	for _, l := range labels {
		r, err := m.resolve(l, spec[l])
		if err != nil {
			return Summary{}, err
		}
		unresolved += r.entry.UnresolvedCount
		selections = append(selections, r)
	}

	corpus := mergeSelections(selections)
	SortPapers(corpus, mode)
	if req.MaxFinal > 0 && len(corpus) > req.MaxFinal {
		corpus = corpus[:req.MaxFinal]
	}

	manifest := make(types.SelectionManifest, len(selections))
	for _, s := range selections {
		manifest[s.label] = s.entry
	}
	removed, err := m.write(manifest, corpus, lang)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{
		RunDir:                m.run.Dir,
		SelectedLabels:        labels,
		FinalPaperCount:       len(corpus),
		PapersIndexJSON:       m.run.PapersIndexJSONPath(),
		ZeroKeepLabels:        zeroKeep,
		UnresolvedRefs:        unresolved,
		Incremental:           req.Incremental,
		SortBy:                string(mode),
		RemovedStalePaperDirs: removed,
		Language:              language,
		LanguageNormalized:    lang,
	}

	err = m.run.UpdateTaskMeta(ctx, func(tm *types.TaskMeta) {
		tm.SelectionLogs = append(tm.SelectionLogs, types.SelectionLogEntry{
			GeneratedAt:           m.now().UTC().Format(time.RFC3339Nano),
			SelectedLabels:        labels,
			MergedUniqueCount:     len(corpus),
			SelectionManifestJSON: m.run.ManifestPath(),
			ZeroKeepLabels:        zeroKeep,
			UnresolvedRefs:        unresolved,
			Incremental:           req.Incremental,
			RemovedStalePaperDirs: removed,
			Language:              language,
			LanguageNormalized:    lang,
		})
		tm.Execution = &types.Execution{
			SelectedCount:       len(corpus),
			CandidateAfterMerge: len(corpus),
		}
	})
	if err != nil {
		return sum, err
	}

	m.log.Info("merge complete",
		zap.Strings("labels", labels),
		zap.Int("papers", len(corpus)),
		zap.Int("unresolved_refs", unresolved),
		zap.Int("removed_stale_dirs", removed))
	return sum, nil
}

// previousSpec loads the last manifest. A missing or unreadable manifest
// yields an empty base.
func (m *Merger) previousSpec() KeepSpec {
	var manifest types.SelectionManifest
	if err := fsutil.ReadJSON(m.run.ManifestPath(), &manifest); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Warn("ignoring unreadable selection manifest", zap.Error(err))
		}
		return KeepSpec{}
	}
	return FromManifest(manifest)
}

// resolve loads label's result set and picks the kept items, indexes first
// then ids, each item at most once.
func (m *Merger) resolve(label string, keep Keep) (resolved, error) {
	path := m.run.QueryResultJSON(label)
	var set types.QueryResultSet
	if err := fsutil.ReadJSON(path, &set); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return resolved{}, fmt.Errorf("%w for label %q: %s", ErrMissingResultSet, label, path)
		}
		return resolved{}, fmt.Errorf("loading result set for %q: %w", label, err)
	}

	byIndex := make(map[int]types.ResultItem, len(set.Results))
	byID := make(map[string]types.ResultItem, len(set.Results))
	for _, it := range set.Results {
		byIndex[it.Index] = it
		if pid := stableIDOf(it); pid != "" {
			byID[pid] = it
		}
	}

	var (
		picked     []types.ResultItem
		unresolved int
	)
	for _, idx := range keep.Indexes {
		if it, ok := byIndex[idx]; ok {
			picked = append(picked, it)
		} else {
			unresolved++
		}
	}
	for _, id := range keep.IDs {
		if it, ok := byID[id]; ok {
			picked = append(picked, it)
		} else {
			unresolved++
		}
	}

	seen := make(map[string]bool, len(picked))
	items := make([]types.ResultItem, 0, len(picked))
	for _, it := range picked {
		pid := stableIDOf(it)
		if pid == "" || seen[pid] {
			continue
		}
		seen[pid] = true
		items = append(items, it)
	}

	if unresolved > 0 {
		m.log.Warn("keep references not found in result set",
			zap.String("label", label), zap.Int("unresolved", unresolved))
	}
	return resolved{
		label: label,
		items: items,
		entry: types.SelectionEntry{
			KeepIndexes:     keep.Indexes,
			KeepIDs:         keep.IDs,
			SelectedCount:   len(items),
			UnresolvedCount: unresolved,
			QueryFile:       path,
			Request:         set.Request,
		},
	}, nil
}

// mergeSelections deduplicates across labels by stable id in label order.
// The first kept copy wins; provenance is the sorted union of labels.
func mergeSelections(selections []resolved) []types.MergedPaper {
	byID := map[string]int{}
	var out []types.MergedPaper
	for _, s := range selections {
		for _, it := range s.items {
			pid := stableIDOf(it)
			if i, ok := byID[pid]; ok {
				if !slices.Contains(out[i].SelectedFromLabels, s.label) {
					out[i].SelectedFromLabels = append(out[i].SelectedFromLabels, s.label)
					slices.Sort(out[i].SelectedFromLabels)
				}
				continue
			}
			it.BaseID = pid
			byID[pid] = len(out)
			out = append(out, types.MergedPaper{ResultItem: it, SelectedFromLabels: []string{s.label}})
		}
	}
	if out == nil {
		out = []types.MergedPaper{}
	}
	return out
}

// write persists the manifest, the merged list, the per-paper directories
// and the index, removing paper directories indexed by the previous merge
// that are not part of corpus.
func (m *Merger) write(manifest types.SelectionManifest, corpus []types.MergedPaper, lang string) (int, error) {
	if err := os.MkdirAll(m.run.SelectionPath(), 0o755); err != nil {
		return 0, fmt.Errorf("creating selection directory: %w", err)
	}
	if err := fsutil.WriteJSON(m.run.ManifestPath(), manifest); err != nil {
		return 0, fmt.Errorf("writing selection manifest: %w", err)
	}
	if err := fsutil.WriteJSON(m.run.MergedRawPath(), corpus); err != nil {
		return 0, fmt.Errorf("writing merged list: %w", err)
	}

	keep := make(map[string]bool, len(corpus))
	for _, p := range corpus {
		keep[filepath.Clean(m.run.PaperDir(p.BaseID))] = true
	}
	removed, err := m.removeStale(keep)
	if err != nil {
		return removed, err
	}

	index := make([]types.PaperIndexEntry, 0, len(corpus))
	for _, p := range corpus {
		dir := m.run.PaperDir(p.BaseID)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return removed, fmt.Errorf("creating paper directory: %w", err)
		}
		if err := fsutil.WriteJSON(filepath.Join(dir, rundir.PaperMetadataJSON), p); err != nil {
			return removed, fmt.Errorf("writing paper metadata: %w", err)
		}
		md, err := report.PaperMetadata(p, lang)
		if err != nil {
			return removed, err
		}
		mdPath := filepath.Join(dir, rundir.PaperMetadataMD)
		if err := fsutil.WriteFileAtomic(mdPath, []byte(md), 0o644); err != nil {
			return removed, fmt.Errorf("writing paper markdown: %w", err)
		}
		index = append(index, types.PaperIndexEntry{
			ArxivID:         p.BaseID,
			Title:           p.Title,
			PrimaryCategory: p.PrimaryCategory,
			Published:       p.Published,
			PaperDir:        dir,
			MetadataMD:      mdPath,
		})
	}

	if err := fsutil.WriteJSON(m.run.PapersIndexJSONPath(), index); err != nil {
		return removed, fmt.Errorf("writing papers index: %w", err)
	}
	md, err := report.PapersIndex(index, lang)
	if err != nil {
		return removed, err
	}
	if err := fsutil.WriteFileAtomic(m.run.PapersIndexMDPath(), []byte(md), 0o644); err != nil {
		return removed, fmt.Errorf("writing papers index markdown: %w", err)
	}
	return removed, nil
}

// removeStale deletes directories listed in the previous papers index that
// are not in keep. Only paper directories inside the run are touched.
func (m *Merger) removeStale(keep map[string]bool) (int, error) {
	var previous []types.PaperIndexEntry
	if err := fsutil.ReadJSON(m.run.PapersIndexJSONPath(), &previous); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			m.log.Warn("ignoring unreadable papers index", zap.Error(err))
		}
		return 0, nil
	}

	candidates := map[string]bool{}
	for _, e := range previous {
		dir := strings.TrimSpace(e.PaperDir)
		if dir == "" {
			continue
		}
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(m.run.Dir, dir)
		}
		dir = filepath.Clean(dir)
		if m.run.IsPaperDir(dir) && !keep[dir] {
			candidates[dir] = true
		}
	}

	dirs := make([]string, 0, len(candidates))
	for d := range candidates {
		dirs = append(dirs, d)
	}
	slices.Sort(dirs)

	removed := 0
	for _, d := range dirs {
		info, err := os.Stat(d)
		if err != nil || !info.IsDir() {
			continue
		}
		if err := os.RemoveAll(d); err != nil {
			return removed, fmt.Errorf("removing stale paper directory: %w", err)
		}
		m.log.Debug("removed stale paper directory", zap.String("dir", d))
		removed++
	}
	metrics.MergeRemovedDirsTotal.Add(float64(removed))
	return removed, nil
}

func stableIDOf(it types.ResultItem) string {
	id := it.BaseID
	if id == "" {
		id = it.ID
	}
	return arxiv.StableID(arxiv.NormalizeID(id))
}
