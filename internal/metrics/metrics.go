// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the Prometheus collectors for fetch, cache and merge
// activity. The process is short-lived, so the registry is exported as a
// node-exporter textfile on exit rather than served over HTTP.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "paper_collector"

// Registry holds every collector defined in this package.
var Registry = prometheus.NewRegistry()

var (
	// FetchAttemptsTotal counts HTTP attempts by outcome
	// (ok, rate_limited, unavailable, http_error, network_error).
	FetchAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_attempts_total",
			Help:      "Total number of arXiv API request attempts",
		},
		[]string{"outcome"},
	)

	// RetryWaitSeconds observes every backoff wait before a retry.
	RetryWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "retry_wait_seconds",
			Help:      "Backoff wait before a retried request",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300},
		},
	)

	// GateWaitSeconds observes the wait imposed by the shared rate gate.
	GateWaitSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gate_wait_seconds",
			Help:      "Time spent waiting for the shared request slot",
			Buckets:   []float64{0, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)

	// CooldownsTotal counts shared cooldown registrations by source status.
	CooldownsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cooldowns_total",
			Help:      "Shared cooldowns registered after rate-limit signals",
		},
		[]string{"source"},
	)

	// CacheLookupsTotal counts result cache lookups ("hit" / "miss" / "forced").
	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Query result cache lookups",
		},
		[]string{"result"},
	)

	// MergeRemovedDirsTotal counts stale paper directories deleted by merges.
	MergeRemovedDirsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "merge_removed_dirs_total",
			Help:      "Stale per-paper directories removed by merge",
		},
	)
)

func init() {
	Registry.MustRegister(
		FetchAttemptsTotal,
		RetryWaitSeconds,
		GateWaitSeconds,
		CooldownsTotal,
		CacheLookupsTotal,
		MergeRemovedDirsTotal,
	)
}

// WriteTextfile writes the registry to path in the text exposition format.
// An empty path is a no-op.
func WriteTextfile(path string) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, Registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
