// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// TaskParams are the run-level defaults recorded when a run is initialized.
type TaskParams struct {
	Topic              string   `json:"topic"`
	Keywords           []string `json:"keywords"`
	Categories         []string `json:"categories"`
	TargetRange        string   `json:"target_range"`
	Lookback           string   `json:"lookback"`
	FromDate           string   `json:"from_date"`
	ToDate             string   `json:"to_date"`
	Language           string   `json:"language"`
	LanguageNormalized string   `json:"language_normalized"`
}

// QueryPlanEntry records one query issued against the run.
type QueryPlanEntry struct {
	Label          string `json:"label"`
	Query          string `json:"query"`
	EffectiveQuery string `json:"effective_query"`
	CacheHit       bool   `json:"cache_hit"`
}

// FetchLogEntry records the outcome of one single-query fetch.
type FetchLogEntry struct {
	Label              string  `json:"label"`
	APIReturnedCount   int     `json:"api_returned_count"`
	DateFilterMode     string  `json:"date_filter_mode"`
	JSONPath           string  `json:"json_path"`
	MDPath             string  `json:"md_path"`
	Language           string  `json:"language"`
	LanguageNormalized string  `json:"language_normalized"`
	CacheHit           bool    `json:"cache_hit"`
	RequestAttempts    int     `json:"request_attempts"`
	RequestWaitSeconds float64 `json:"request_wait_seconds"`
	RateStatePath      string  `json:"rate_state_path"`
}

// SelectionLogEntry records one merge.
type SelectionLogEntry struct {
	GeneratedAt           string   `json:"generated_at"`
	SelectedLabels        []string `json:"selected_labels"`
	MergedUniqueCount     int      `json:"merged_unique_count"`
	SelectionManifestJSON string   `json:"selection_manifest_json"`
	ZeroKeepLabels        []string `json:"zero_keep_labels"`
	UnresolvedRefs        int      `json:"unresolved_refs"`
	Incremental           bool     `json:"incremental"`
	RemovedStalePaperDirs int      `json:"removed_stale_paper_dirs"`
	Language              string   `json:"language"`
	LanguageNormalized    string   `json:"language_normalized"`
}

// Execution holds the latest corpus counts.
type Execution struct {
	SelectedCount       int `json:"selected_count"`
	CandidateAfterMerge int `json:"candidate_after_merge"`
}

// TaskMeta is the run's task_meta.json.
type TaskMeta struct {
	GeneratedAt    string              `json:"generated_at"`
	RunDir         string              `json:"run_dir"`
	Params         TaskParams          `json:"params"`
	Notes          string              `json:"notes"`
	QueryPlan      []QueryPlanEntry    `json:"query_plan"`
	QueryFetchLogs []FetchLogEntry     `json:"query_fetch_logs"`
	SelectionLogs  []SelectionLogEntry `json:"selection_logs"`
	Execution      *Execution          `json:"execution,omitempty"`
}
