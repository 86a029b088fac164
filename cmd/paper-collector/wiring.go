// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/arxiv"
	"github.com/pdiddy/paper-collector/internal/collect"
	"github.com/pdiddy/paper-collector/internal/httputil"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/ratelimit"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/internal/secrets"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// cmdLog returns the logger attached to the command's context.
func cmdLog(cmd *cobra.Command) *zap.Logger {
	return logger.FromContext(cmd.Context())
}

// newGate returns the shared rate gate for run.
func newGate(cmd *cobra.Command, run *rundir.Run, cfg types.CollectorConfig) *ratelimit.Gate {
	return ratelimit.New(run.RateStatePath(cfg.Rate.StatePath),
		ratelimit.WithLockTimeout(cfg.Rate.LockTimeout),
		ratelimit.WithLogger(cmdLog(cmd)))
}

// newFetcher wires gate, retrier, API client and cache into a Fetcher.
func newFetcher(cmd *cobra.Command, run *rundir.Run, cfg types.CollectorConfig) *collect.Fetcher {
	log := cmdLog(cmd)
	gate := newGate(cmd, run, cfg)
	retrier := httputil.NewRetrier(gate,
		httputil.RetryPolicy{
			MaxRetries:  cfg.Retry.Max,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			Jitter:      cfg.Retry.Jitter,
			MinInterval: cfg.Rate.MinInterval,
		},
		httputil.WithHTTPClient(&http.Client{Timeout: cfg.HTTP.Timeout}),
		httputil.WithUserAgent(secrets.UserAgent(cfg.HTTP.UserAgent, loadedSecrets)),
		httputil.WithLogger(log),
	)
	return collect.NewFetcher(run, arxiv.NewClient(retrier), cfg.FetchControl(gate.Path()),
		collect.WithLogger(log))
}

// printJSON writes v to the command's stdout as indented JSON.
func printJSON(cmd *cobra.Command, v any) error {
	return writeJSON(cmd.OutOrStdout(), v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// failure is printed when a command fails before producing its own summary.
type failure struct {
	Status string `json:"status"`
	Error  string `json:"error"`
	RunDir string `json:"run_dir,omitempty"`
}

// printFailure prints a failure summary and returns err unchanged.
func printFailure(cmd *cobra.Command, runDir string, err error) error {
	_ = printJSON(cmd, failure{Status: "error", Error: err.Error(), RunDir: runDir})
	return err
}
