// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// Configuration keys. Environment variables use the PAPER_COLLECTOR_ prefix
// with dots replaced by underscores (PAPER_COLLECTOR_RATE_MIN_INTERVAL).
const (
	keyLogLevel    = "log.level"
	keyLogFormat   = "log.format"
	keyMetricsFile = "metrics.file"
	keySecretsDir  = "secrets.dir"

	keyHTTPTimeout   = "http.timeout"
	keyHTTPUserAgent = "http.user_agent"

	keyRateMinInterval = "rate.min_interval"
	keyRateLockTimeout = "rate.lock_timeout"
	keyRateStatePath   = "rate.state_path"

	keyRetryMax       = "retry.max"
	keyRetryBaseDelay = "retry.base_delay"
	keyRetryMaxDelay  = "retry.max_delay"
	keyRetryJitter    = "retry.jitter"

	keyBatchOversample      = "batch.oversample_factor"
	keyBatchDefaultMax      = "batch.default_max_results"
	keyBatchMaxResultsCap   = "batch.max_results_cap"
	keyBatchContinueOnError = "batch.continue_on_error"

	keyMergeSortBy   = "merge.sort_by"
	keyMergeMaxFinal = "merge.max_final"
)

func setDefaults() {
	viper.SetDefault(keyHTTPTimeout, 30*time.Second)
	viper.SetDefault(keyHTTPUserAgent, "paper-collector/"+version)
	viper.SetDefault(keyRateMinInterval, 5*time.Second)
	viper.SetDefault(keyRateLockTimeout, 30*time.Second)
	viper.SetDefault(keyRetryMax, 4)
	viper.SetDefault(keyRetryBaseDelay, 5*time.Second)
	viper.SetDefault(keyRetryMaxDelay, 120*time.Second)
	viper.SetDefault(keyRetryJitter, time.Second)
	viper.SetDefault(keyBatchOversample, 2)
	viper.SetDefault(keyBatchMaxResultsCap, 60)
	viper.SetDefault(keyMergeSortBy, "published_desc")
}

// bindFlags binds the named flags of cmd to configuration keys so a flag set
// on the command line overrides file and environment values.
func bindFlags(cmd *cobra.Command, bindings map[string]string) error {
	for key, flag := range bindings {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			return fmt.Errorf("flag --%s not defined on %s", flag, cmd.Name())
		}
		if err := viper.BindPFlag(key, f); err != nil {
			return fmt.Errorf("binding --%s: %w", flag, err)
		}
	}
	return nil
}

// fetchFlagBindings are shared by fetch and batch.
var fetchFlagBindings = map[string]string{
	keyHTTPTimeout:     "request-timeout",
	keyHTTPUserAgent:   "user-agent",
	keyRateMinInterval: "min-interval",
	keyRateLockTimeout: "lock-timeout",
	keyRateStatePath:   "rate-state-path",
	keyRetryMax:        "retry-max",
	keyRetryBaseDelay:  "retry-base",
	keyRetryMaxDelay:   "retry-max-delay",
	keyRetryJitter:     "retry-jitter",
}

func addFetchControlFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Duration("request-timeout", 30*time.Second, "HTTP request timeout")
	f.String("user-agent", "", "User-Agent header (default paper-collector/<version>)")
	f.Duration("min-interval", 5*time.Second, "minimum spacing between requests sharing a rate-state file")
	f.Duration("lock-timeout", 30*time.Second, "maximum wait for the rate-state lock")
	f.String("rate-state-path", "", "shared rate-state file (default <run>/.runtime/arxiv_api_state.json)")
	f.Int("retry-max", 4, "retries after the first attempt for 429/503 and network errors")
	f.Duration("retry-base", 5*time.Second, "first backoff step; doubles per attempt")
	f.Duration("retry-max-delay", 120*time.Second, "cap on a single backoff step")
	f.Duration("retry-jitter", time.Second, "upper bound of random jitter added to each wait")
}

// loadConfig reads the typed configuration from viper.
func loadConfig() types.CollectorConfig {
	ua := viper.GetString(keyHTTPUserAgent)
	if ua == "" {
		ua = "paper-collector/" + version
	}
	return types.CollectorConfig{
		HTTP: types.HTTPConfig{
			Timeout:   viper.GetDuration(keyHTTPTimeout),
			UserAgent: ua,
		},
		Rate: types.RateConfig{
			MinInterval: viper.GetDuration(keyRateMinInterval),
			LockTimeout: viper.GetDuration(keyRateLockTimeout),
			StatePath:   viper.GetString(keyRateStatePath),
		},
		Retry: types.RetryConfig{
			Max:       viper.GetInt(keyRetryMax),
			BaseDelay: viper.GetDuration(keyRetryBaseDelay),
			MaxDelay:  viper.GetDuration(keyRetryMaxDelay),
			Jitter:    viper.GetDuration(keyRetryJitter),
		},
		Batch: types.BatchConfig{
			OversampleFactor:  viper.GetInt(keyBatchOversample),
			DefaultMaxResults: viper.GetInt(keyBatchDefaultMax),
			MaxResultsCap:     viper.GetInt(keyBatchMaxResultsCap),
			ContinueOnError:   viper.GetBool(keyBatchContinueOnError),
		},
		Merge: types.MergeConfig{
			SortBy:   viper.GetString(keyMergeSortBy),
			MaxFinal: viper.GetInt(keyMergeMaxFinal),
		},
	}
}
