// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-collector pipeline:
// fetched result sets, selection manifests, the merged corpus, the shared
// rate state and the configuration structs used by every stage.
//
// All run-directory artifacts are JSON; the tags below define their on-disk
// field names.
package types

// RequestParams holds the arXiv API paging and sort parameters that were
// actually sent. Its fields take part in the cache fingerprint.
type RequestParams struct {
	// SearchQuery is the fully expanded search_query expression.
	SearchQuery string `json:"search_query" yaml:"search_query"`

	// Start is the page offset.
	Start int `json:"start" yaml:"start"`

	// MaxResults is the page size.
	MaxResults int `json:"max_results" yaml:"max_results"`

	// SortBy is one of relevance, lastUpdatedDate, submittedDate.
	SortBy string `json:"sortBy" yaml:"sort_by"`

	// SortOrder is ascending or descending.
	SortOrder string `json:"sortOrder" yaml:"sort_order"`
}

// FetchControl records the rate and retry settings in effect when a result
// set was produced. It is informational and never part of the fingerprint.
type FetchControl struct {
	MinIntervalSec float64 `json:"min_interval_sec"`
	RetryMax       int     `json:"retry_max"`
	RetryBaseSec   float64 `json:"retry_base_sec"`
	RetryMaxSec    float64 `json:"retry_max_sec"`
	RetryJitterSec float64 `json:"retry_jitter_sec"`
	RateStatePath  string  `json:"rate_state_path"`
}

// QueryResultSet is the stored outcome of one labelled query. The file is
// written whole (temp file + rename) or not at all.
type QueryResultSet struct {
	GeneratedAt        string        `json:"generated_at"`
	Label              string        `json:"label"`
	Query              string        `json:"query"`
	EffectiveQuery     string        `json:"effective_query"`
	Categories         []string      `json:"categories"`
	FromDate           string        `json:"from_date"`
	ToDate             string        `json:"to_date"`
	Language           string        `json:"language"`
	LanguageNormalized string        `json:"language_normalized"`
	Request            RequestParams `json:"request"`
	Results            []ResultItem  `json:"results"`
	FetchControl       FetchControl  `json:"fetch_control"`

	// ReusedAt is stamped each time the cached set is served instead of a
	// fresh fetch.
	ReusedAt string `json:"reused_at,omitempty"`
}
