// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import "time"

// HTTPConfig holds shared HTTP settings for requests to the arXiv API.
type HTTPConfig struct {
	// Timeout bounds each individual HTTP request.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with every request.
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// RateConfig controls the cross-process request gate.
type RateConfig struct {
	// MinInterval is the minimum spacing between two requests sharing a state file.
	MinInterval time.Duration `json:"min_interval" yaml:"min_interval"`

	// LockTimeout bounds how long a caller waits for the state-file lock.
	LockTimeout time.Duration `json:"lock_timeout" yaml:"lock_timeout"`

	// StatePath overrides the default <run>/.runtime/arxiv_api_state.json.
	StatePath string `json:"state_path,omitempty" yaml:"state_path,omitempty"`
}

// RetryConfig controls backoff for 429/503 and network failures.
type RetryConfig struct {
	// Max is the number of retries; total attempts are Max+1.
	Max int `json:"max" yaml:"max"`

	// BaseDelay is the first backoff step; it doubles on every attempt.
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// MaxDelay caps a single computed backoff step.
	MaxDelay time.Duration `json:"max_delay" yaml:"max_delay"`

	// Jitter is the upper bound of the uniform random delay added to each wait.
	Jitter time.Duration `json:"jitter" yaml:"jitter"`
}

// BatchConfig holds settings for batch fetching.
type BatchConfig struct {
	// OversampleFactor multiplies the per-query target to get the auto page size (default 2).
	OversampleFactor int `json:"oversample_factor" yaml:"oversample_factor"`

	// DefaultMaxResults, when positive, replaces the auto-derived page size.
	DefaultMaxResults int `json:"default_max_results" yaml:"default_max_results"`

	// MaxResultsCap caps the auto-derived page size (default 60).
	MaxResultsCap int `json:"max_results_cap" yaml:"max_results_cap"`

	// ContinueOnError keeps going after a failed query.
	ContinueOnError bool `json:"continue_on_error" yaml:"continue_on_error"`
}

// MergeConfig holds settings for the selection merge.
type MergeConfig struct {
	// SortBy is published_desc, published_asc or title.
	SortBy string `json:"sort_by" yaml:"sort_by"`

	// MaxFinal caps the merged corpus; zero means no cap.
	MaxFinal int `json:"max_final" yaml:"max_final"`
}

// CollectorConfig groups every stage configuration.
type CollectorConfig struct {
	HTTP  HTTPConfig  `json:"http" yaml:"http"`
	Rate  RateConfig  `json:"rate" yaml:"rate"`
	Retry RetryConfig `json:"retry" yaml:"retry"`
	Batch BatchConfig `json:"batch" yaml:"batch"`
	Merge MergeConfig `json:"merge" yaml:"merge"`
}

// FetchControl reports the rate and retry settings in the form stored with
// each result set.
func (c CollectorConfig) FetchControl(statePath string) FetchControl {
	return FetchControl{
		MinIntervalSec: c.Rate.MinInterval.Seconds(),
		RetryMax:       c.Retry.Max,
		RetryBaseSec:   c.Retry.BaseDelay.Seconds(),
		RetryMaxSec:    c.Retry.MaxDelay.Seconds(),
		RetryJitterSec: c.Retry.Jitter.Seconds(),
		RateStatePath:  statePath,
	}
}
