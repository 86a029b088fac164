// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selection

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/pkg/types"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newRun(t *testing.T) *rundir.Run {
	t.Helper()
	run, _, err := rundir.Init(rundir.InitOptions{
		OutputRoot: t.TempDir(),
		Topic:      "sparse experts",
		FromDate:   "2026-02-01",
		ToDate:     "2026-02-07",
		Now:        func() time.Time { return fixedNow },
	})
	require.NoError(t, err)
	return run
}

func item(index int, id, title, published string) types.ResultItem {
	return types.ResultItem{
		Index:     index,
		ID:        id,
		BaseID:    id[:len(id)-2],
		Title:     title,
		Published: published,
		Authors:   []string{"A. Author"},
	}
}

func writeSet(t *testing.T, run *rundir.Run, label string, items ...types.ResultItem) {
	t.Helper()
	set := types.QueryResultSet{
		Label:   label,
		Query:   label + " query",
		Request: types.RequestParams{SearchQuery: "all:" + label, MaxResults: 10},
		Results: items,
	}
	require.NoError(t, fsutil.WriteJSON(run.QueryResultJSON(label), set))
}

func newMerger(run *rundir.Run) *Merger {
	return NewMerger(run, WithClock(func() time.Time { return fixedNow }))
}

func readIndex(t *testing.T, run *rundir.Run) []types.PaperIndexEntry {
	t.Helper()
	var idx []types.PaperIndexEntry
	require.NoError(t, fsutil.ReadJSON(run.PapersIndexJSONPath(), &idx))
	return idx
}

func readCorpus(t *testing.T, run *rundir.Run) []types.MergedPaper {
	t.Helper()
	var corpus []types.MergedPaper
	require.NoError(t, fsutil.ReadJSON(run.MergedRawPath(), &corpus))
	return corpus
}

// q1 keeps indexes 0 and 2; q2 keeps X123, which is q1's index 2.
func TestMergeDeduplicatesAcrossLabels(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1",
		item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Beta", "2026-02-04T00:00:00Z"),
		item(2, "2602.12300v2", "X123", "2026-02-05T00:00:00Z"),
	)
	writeSet(t, run, "q2",
		item(0, "2602.12300v1", "X123", "2026-02-05T00:00:00Z"),
	)

	sum, err := newMerger(run).Merge(context.Background(), Request{
		Spec: KeepSpec{
			"q1": {Indexes: []int{0, 2}},
			"q2": {IDs: []string{"2602.12300"}},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FinalPaperCount)
	assert.Equal(t, []string{"q1", "q2"}, sum.SelectedLabels)
	assert.Equal(t, "published_desc", sum.SortBy)
	assert.Zero(t, sum.UnresolvedRefs)

	corpus := readCorpus(t, run)
	require.Len(t, corpus, 2)
	assert.Equal(t, "2602.12300", corpus[0].BaseID)
	assert.Equal(t, []string{"q1", "q2"}, corpus[0].SelectedFromLabels)
	assert.Equal(t, "2602.12300v2", corpus[0].ID, "first kept copy wins")
	assert.Equal(t, "2602.00001", corpus[1].BaseID)
	assert.Equal(t, []string{"q1"}, corpus[1].SelectedFromLabels)

	for _, p := range corpus {
		dir := run.PaperDir(p.BaseID)
		assert.FileExists(t, filepath.Join(dir, rundir.PaperMetadataJSON))
		assert.FileExists(t, filepath.Join(dir, rundir.PaperMetadataMD))
	}

	idx := readIndex(t, run)
	require.Len(t, idx, 2)
	assert.Equal(t, run.PaperDir("2602.12300"), idx[0].PaperDir)
	assert.True(t, filepath.IsAbs(idx[0].MetadataMD))

	var manifest types.SelectionManifest
	require.NoError(t, fsutil.ReadJSON(run.ManifestPath(), &manifest))
	assert.Equal(t, 2, manifest["q1"].SelectedCount)
	assert.Equal(t, 1, manifest["q2"].SelectedCount)
	assert.Equal(t, "all:q2", manifest["q2"].Request.SearchQuery)
	assert.Equal(t, run.QueryResultJSON("q1"), manifest["q1"].QueryFile)
}

func TestMergeWithinLabelDedup(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1",
		item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Beta", "2026-02-04T00:00:00Z"),
	)

	_, err := newMerger(run).Merge(context.Background(), Request{
		Spec: KeepSpec{"q1": {Indexes: []int{0}, IDs: []string{"2602.00001v3"}}},
	})
	require.NoError(t, err)

	var manifest types.SelectionManifest
	require.NoError(t, fsutil.ReadJSON(run.ManifestPath(), &manifest))
	assert.Equal(t, 1, manifest["q1"].SelectedCount)
	assert.Equal(t, []string{"2602.00001"}, manifest["q1"].KeepIDs)
}

func TestMergeIsIdempotent(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1",
		item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Beta", "2026-02-04T00:00:00Z"),
	)
	req := Request{Spec: KeepSpec{"q1": {Indexes: []int{0, 1}}}}
	m := newMerger(run)

	_, err := m.Merge(context.Background(), req)
	require.NoError(t, err)
	firstRaw, err := os.ReadFile(run.MergedRawPath())
	require.NoError(t, err)
	firstIndex, err := os.ReadFile(run.PapersIndexJSONPath())
	require.NoError(t, err)

	sum, err := m.Merge(context.Background(), req)
	require.NoError(t, err)
	assert.Zero(t, sum.RemovedStalePaperDirs)

	secondRaw, err := os.ReadFile(run.MergedRawPath())
	require.NoError(t, err)
	secondIndex, err := os.ReadFile(run.PapersIndexJSONPath())
	require.NoError(t, err)
	assert.Equal(t, string(firstRaw), string(secondRaw))
	assert.Equal(t, string(firstIndex), string(secondIndex))
	assert.Equal(t, 2, paperDirCount(t, run))
}

func TestMergeRemovesStalePaperDirs(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1",
		item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Beta", "2026-02-04T00:00:00Z"),
	)
	m := newMerger(run)

	_, err := m.Merge(context.Background(), Request{Spec: KeepSpec{"q1": {Indexes: []int{0, 1}}}})
	require.NoError(t, err)
	require.DirExists(t, run.PaperDir("2602.00002"))

	sum, err := m.Merge(context.Background(), Request{Spec: KeepSpec{"q1": {Indexes: []int{0}}}})
	require.NoError(t, err)
	assert.Equal(t, 1, sum.RemovedStalePaperDirs)
	assert.NoDirExists(t, run.PaperDir("2602.00002"))
	assert.DirExists(t, run.PaperDir("2602.00001"))
	assert.Equal(t, 1, paperDirCount(t, run))
}

func TestMergeNeverRemovesReservedOrOutsideDirs(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1", item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"))

	outside := t.TempDir()
	require.NoError(t, fsutil.WriteJSON(run.PapersIndexJSONPath(), []types.PaperIndexEntry{
		{ArxivID: "x", PaperDir: run.QueryResultsPath()},
		{ArxivID: "y", PaperDir: run.SelectionPath()},
		{ArxivID: "z", PaperDir: outside},
		{ArxivID: "w", PaperDir: run.Dir},
		{ArxivID: "v", PaperDir: "../escape"},
	}))

	sum, err := newMerger(run).Merge(context.Background(), Request{Spec: KeepSpec{"q1": {Indexes: []int{0}}}})
	require.NoError(t, err)
	assert.Zero(t, sum.RemovedStalePaperDirs)
	assert.DirExists(t, run.QueryResultsPath())
	assert.DirExists(t, run.SelectionPath())
	assert.DirExists(t, outside)
}

func TestMergeIncrementalOverlay(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "a",
		item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Beta", "2026-02-04T00:00:00Z"),
	)
	writeSet(t, run, "b",
		item(0, "2602.00003v1", "Gamma", "2026-02-05T00:00:00Z"),
	)
	m := newMerger(run)

	_, err := m.Merge(context.Background(), Request{Spec: KeepSpec{
		"a": {Indexes: []int{0}},
		"b": {Indexes: []int{0}},
	}})
	require.NoError(t, err)

	// Mentioning a replaces its entry; b keeps its previous selection.
	sum, err := m.Merge(context.Background(), Request{
		Spec:        KeepSpec{"a": {Indexes: []int{1}}},
		Incremental: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, sum.SelectedLabels)
	assert.True(t, sum.Incremental)

	var manifest types.SelectionManifest
	require.NoError(t, fsutil.ReadJSON(run.ManifestPath(), &manifest))
	assert.Equal(t, []int{1}, manifest["a"].KeepIndexes)
	assert.Equal(t, []int{0}, manifest["b"].KeepIndexes)
	assert.Equal(t, 1, sum.RemovedStalePaperDirs)
	assert.NoDirExists(t, run.PaperDir("2602.00001"))

	// An empty list replaces too.
	sum, err = m.Merge(context.Background(), Request{
		Spec:        KeepSpec{"a": {}},
		Incremental: true,
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, sum.ZeroKeepLabels)
	assert.Equal(t, 1, sum.FinalPaperCount)

	require.NoError(t, fsutil.ReadJSON(run.ManifestPath(), &manifest))
	assert.Empty(t, manifest["a"].KeepIndexes)
	assert.Equal(t, []int{0}, manifest["b"].KeepIndexes)
	assert.Equal(t, "2602.00003", readCorpus(t, run)[0].BaseID)
}

func TestMergeNonIncrementalIgnoresPreviousManifest(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "a", item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"))
	writeSet(t, run, "b", item(0, "2602.00003v1", "Gamma", "2026-02-05T00:00:00Z"))
	m := newMerger(run)

	_, err := m.Merge(context.Background(), Request{Spec: KeepSpec{"a": {Indexes: []int{0}}, "b": {Indexes: []int{0}}}})
	require.NoError(t, err)
	sum, err := m.Merge(context.Background(), Request{Spec: KeepSpec{"a": {Indexes: []int{0}}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, sum.SelectedLabels)
	assert.Equal(t, 1, sum.FinalPaperCount)
}

func TestMergeMissingResultSetWritesNothing(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1", item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"))

	_, err := newMerger(run).Merge(context.Background(), Request{Spec: KeepSpec{
		"q1":    {Indexes: []int{0}},
		"ghost": {Indexes: []int{0}},
	}})
	require.ErrorIs(t, err, ErrMissingResultSet)
	assert.Contains(t, err.Error(), "ghost")

	assert.NoFileExists(t, run.ManifestPath())
	assert.NoFileExists(t, run.MergedRawPath())
	assert.NoFileExists(t, run.PapersIndexJSONPath())
	assert.NoDirExists(t, run.PaperDir("2602.00001"))
}

func TestMergeCountsUnresolvedRefs(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1", item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"))

	sum, err := newMerger(run).Merge(context.Background(), Request{Spec: KeepSpec{
		"q1": {Indexes: []int{0, 5, -1}, IDs: []string{"9999.99999"}},
	}})
	require.NoError(t, err)
	assert.Equal(t, 3, sum.UnresolvedRefs)
	assert.Equal(t, 1, sum.FinalPaperCount)

	var manifest types.SelectionManifest
	require.NoError(t, fsutil.ReadJSON(run.ManifestPath(), &manifest))
	assert.Equal(t, 3, manifest["q1"].UnresolvedCount)
}

func TestMergeNoLabels(t *testing.T) {
	run := newRun(t)
	_, err := newMerger(run).Merge(context.Background(), Request{})
	assert.ErrorIs(t, err, ErrNoLabels)

	_, err = newMerger(run).Merge(context.Background(), Request{Incremental: true})
	assert.ErrorIs(t, err, ErrNoLabels)
}

func TestMergeRejectsBadInput(t *testing.T) {
	run := newRun(t)
	_, err := newMerger(run).Merge(context.Background(), Request{
		Spec:     KeepSpec{"q1": {Indexes: []int{0}}},
		SortMode: "random",
	})
	assert.ErrorContains(t, err, "unknown sort mode")

	_, err = newMerger(run).Merge(context.Background(), Request{Spec: KeepSpec{"../q1": {}}})
	assert.ErrorContains(t, err, "invalid label")
}

func TestMergeSortAndMaxFinal(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1",
		item(0, "2602.00001v1", "beta", "2026-02-03T00:00:00Z"),
		item(1, "2602.00002v1", "Alpha", "2026-02-05T00:00:00Z"),
		item(2, "2602.00003v1", "Ǳ gamma", "2026-02-04T00:00:00Z"),
	)
	all := KeepSpec{"q1": {Indexes: []int{0, 1, 2}}}

	tests := []struct {
		mode     SortMode
		maxFinal int
		want     []string
	}{
		{"", 0, []string{"2602.00002", "2602.00003", "2602.00001"}},
		{SortPublishedAsc, 0, []string{"2602.00001", "2602.00003", "2602.00002"}},
		{SortTitle, 0, []string{"2602.00002", "2602.00001", "2602.00003"}},
		{SortPublishedDesc, 2, []string{"2602.00002", "2602.00003"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			sum, err := newMerger(run).Merge(context.Background(), Request{Spec: all, SortMode: tt.mode, MaxFinal: tt.maxFinal})
			require.NoError(t, err)
			assert.Equal(t, len(tt.want), sum.FinalPaperCount)

			var got []string
			for _, p := range readCorpus(t, run) {
				got = append(got, p.BaseID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMergeUpdatesTaskMeta(t *testing.T) {
	run := newRun(t)
	writeSet(t, run, "q1", item(0, "2602.00001v1", "Alpha", "2026-02-03T00:00:00Z"))

	sum, err := newMerger(run).Merge(context.Background(), Request{
		Spec:     KeepSpec{"q1": {Indexes: []int{0}}},
		Language: "中文",
	})
	require.NoError(t, err)
	assert.Equal(t, "zh", sum.LanguageNormalized)

	meta, err := run.LoadTaskMeta()
	require.NoError(t, err)
	require.Len(t, meta.SelectionLogs, 1)
	log := meta.SelectionLogs[0]
	assert.Equal(t, []string{"q1"}, log.SelectedLabels)
	assert.Equal(t, 1, log.MergedUniqueCount)
	assert.Equal(t, run.ManifestPath(), log.SelectionManifestJSON)
	assert.Equal(t, fixedNow.Format(time.RFC3339Nano), log.GeneratedAt)
	require.NotNil(t, meta.Execution)
	assert.Equal(t, 1, meta.Execution.SelectedCount)

	md, err := os.ReadFile(filepath.Join(run.PaperDir("2602.00001"), rundir.PaperMetadataMD))
	require.NoError(t, err)
	assert.Contains(t, string(md), "论文元数据")
}

func TestSortPapersStable(t *testing.T) {
	papers := []types.MergedPaper{
		{ResultItem: types.ResultItem{BaseID: "a", Published: "bad"}},
		{ResultItem: types.ResultItem{BaseID: "b", Published: "2026-01-01T00:00:00Z"}},
		{ResultItem: types.ResultItem{BaseID: "c", Published: ""}},
	}
	SortPapers(papers, SortPublishedDesc)
	assert.Equal(t, "b", papers[0].BaseID)
	assert.Equal(t, "a", papers[1].BaseID)
	assert.Equal(t, "c", papers[2].BaseID)
}

func paperDirCount(t *testing.T, run *rundir.Run) int {
	t.Helper()
	entries, err := os.ReadDir(run.Dir)
	require.NoError(t, err)
	n := 0
	for _, e := range entries {
		if e.IsDir() && run.IsPaperDir(filepath.Join(run.Dir, e.Name())) {
			n++
		}
	}
	return n
}
