// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package rundir owns the layout of a collection run directory:
//
//	<run>/
//	  task_meta.json, task_meta.md
//	  query_results/<label>.json, <label>.md
//	  query_selection/selected_by_query.json, merged_selected_raw.json
//	  <base_id>/metadata.json, metadata.md
//	  papers_index.json, papers_index.md
//	  .runtime/arxiv_api_state.json
package rundir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Layout names.
const (
	QueryResultsDir   = "query_results"
	QuerySelectionDir = "query_selection"
	RuntimeDir        = ".runtime"

	TaskMetaJSON          = "task_meta.json"
	TaskMetaMD            = "task_meta.md"
	SelectionManifestJSON = "selected_by_query.json"
	MergedRawJSON         = "merged_selected_raw.json"
	PapersIndexJSON       = "papers_index.json"
	PapersIndexMD         = "papers_index.md"
	PaperMetadataJSON     = "metadata.json"
	PaperMetadataMD       = "metadata.md"
	RateStateFile         = "arxiv_api_state.json"
)

// ErrRunDirNotFound is returned when a run directory does not exist.
var ErrRunDirNotFound = errors.New("run directory not found")

// Run is an existing run directory.
type Run struct {
	Dir string
}

// Open resolves dir to an absolute path and checks that it is a directory.
func Open(dir string) (*Run, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolving run directory: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrRunDirNotFound, abs)
	}
	return &Run{Dir: abs}, nil
}

// QueryResultsPath returns <run>/query_results.
func (r *Run) QueryResultsPath() string { return filepath.Join(r.Dir, QueryResultsDir) }

// QueryResultJSON returns the result-set path for label.
func (r *Run) QueryResultJSON(label string) string {
	return filepath.Join(r.QueryResultsPath(), label+".json")
}

// QueryResultMD returns the Markdown sibling of the result set for label.
func (r *Run) QueryResultMD(label string) string {
	return filepath.Join(r.QueryResultsPath(), label+".md")
}

// SelectionPath returns <run>/query_selection.
func (r *Run) SelectionPath() string { return filepath.Join(r.Dir, QuerySelectionDir) }

// ManifestPath returns the selection manifest path.
func (r *Run) ManifestPath() string {
	return filepath.Join(r.SelectionPath(), SelectionManifestJSON)
}

// MergedRawPath returns the merged raw list path.
func (r *Run) MergedRawPath() string { return filepath.Join(r.SelectionPath(), MergedRawJSON) }

// PapersIndexJSONPath returns <run>/papers_index.json.
func (r *Run) PapersIndexJSONPath() string { return filepath.Join(r.Dir, PapersIndexJSON) }

// PapersIndexMDPath returns <run>/papers_index.md.
func (r *Run) PapersIndexMDPath() string { return filepath.Join(r.Dir, PapersIndexMD) }

// PaperDir returns the per-paper directory for a stable id.
func (r *Run) PaperDir(baseID string) string { return filepath.Join(r.Dir, baseID) }

// TaskMetaPath returns <run>/task_meta.json.
func (r *Run) TaskMetaPath() string { return filepath.Join(r.Dir, TaskMetaJSON) }

// TaskMetaMDPath returns <run>/task_meta.md.
func (r *Run) TaskMetaMDPath() string { return filepath.Join(r.Dir, TaskMetaMD) }

// DefaultRateStatePath returns <run>/.runtime/arxiv_api_state.json.
func (r *Run) DefaultRateStatePath() string {
	return filepath.Join(r.Dir, RuntimeDir, RateStateFile)
}

// RateStatePath returns override when set (made absolute), else the default.
func (r *Run) RateStatePath(override string) string {
	if strings.TrimSpace(override) == "" {
		return r.DefaultRateStatePath()
	}
	if abs, err := filepath.Abs(override); err == nil {
		return abs
	}
	return override
}

// IsPaperDir reports whether path may hold per-paper output: a direct or
// nested child of the run directory that is not one of the reserved layout
// directories. Relative paths are resolved against the run directory.
func (r *Run) IsPaperDir(path string) bool {
	if !filepath.IsAbs(path) {
		path = filepath.Join(r.Dir, path)
	}
	rel, err := filepath.Rel(r.Dir, filepath.Clean(path))
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return false
	}
	switch strings.SplitN(rel, string(filepath.Separator), 2)[0] {
	case QueryResultsDir, QuerySelectionDir, RuntimeDir:
		return false
	}
	return true
}
