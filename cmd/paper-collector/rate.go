// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-collector/internal/ratelimit"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/pkg/types"
)

var rateCmd = &cobra.Command{
	Use:   "rate",
	Short: "Inspect or extend the shared rate-limit state",
	Long: `Rate operates on the rate-state file shared by every fetch that uses it.
Select the file with --rate-state-path, or with --run-dir for the run's
default .runtime/arxiv_api_state.json.`,
}

var rateStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the rate state and the current wait",
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			keyRateMinInterval: "min-interval",
			keyRateLockTimeout: "lock-timeout",
		})
	},
	RunE: runRateStatus,
}

var rateCooldownCmd = &cobra.Command{
	Use:   "cooldown",
	Short: "Register a shared cooldown",
	Long: `Cooldown extends the shared "no requests before" deadline to at least
now + duration. An existing later deadline is kept.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{keyRateLockTimeout: "lock-timeout"})
	},
	RunE: runRateCooldown,
}

func init() {
	for _, c := range []*cobra.Command{rateStatusCmd, rateCooldownCmd} {
		c.Flags().String("run-dir", "", "run directory whose default state file to use")
		c.Flags().String("rate-state-path", "", "rate-state file")
		c.Flags().Duration("lock-timeout", 30*time.Second, "maximum wait for the rate-state lock")
	}
	rateStatusCmd.Flags().Duration("min-interval", 5*time.Second, "minimum spacing used to compute the wait")
	rateCooldownCmd.Flags().Duration("duration", 0, "cooldown length (required)")
	_ = rateCooldownCmd.MarkFlagRequired("duration")

	rateCmd.AddCommand(rateStatusCmd, rateCooldownCmd)
	rootCmd.AddCommand(rateCmd)
}

type rateSummary struct {
	Status           string          `json:"status"`
	RateStatePath    string          `json:"rate_state_path"`
	State            types.RateState `json:"state"`
	RemainingSeconds float64         `json:"remaining_seconds"`
}

// ratePath resolves the state file from --rate-state-path or --run-dir.
func ratePath(cmd *cobra.Command) (string, error) {
	path, _ := cmd.Flags().GetString("rate-state-path")
	if path != "" {
		return filepath.Abs(path)
	}
	dir, _ := cmd.Flags().GetString("run-dir")
	if dir == "" {
		return "", fmt.Errorf("pass --rate-state-path or --run-dir")
	}
	run, err := rundir.Open(dir)
	if err != nil {
		return "", err
	}
	return run.DefaultRateStatePath(), nil
}

func runRateStatus(cmd *cobra.Command, args []string) error {
	path, err := ratePath(cmd)
	if err != nil {
		return printFailure(cmd, "", err)
	}
	gate := ratelimit.New(path,
		ratelimit.WithLockTimeout(viper.GetDuration(keyRateLockTimeout)),
		ratelimit.WithLogger(cmdLog(cmd)))
	return printRateState(cmd, gate, viper.GetDuration(keyRateMinInterval))
}

func runRateCooldown(cmd *cobra.Command, args []string) error {
	path, err := ratePath(cmd)
	if err != nil {
		return printFailure(cmd, "", err)
	}
	d, _ := cmd.Flags().GetDuration("duration")
	if d <= 0 {
		return printFailure(cmd, "", fmt.Errorf("--duration must be positive"))
	}
	gate := ratelimit.New(path,
		ratelimit.WithLockTimeout(viper.GetDuration(keyRateLockTimeout)),
		ratelimit.WithLogger(cmdLog(cmd)))
	if err := gate.RegisterCooldown(cmd.Context(), d); err != nil {
		return printFailure(cmd, "", err)
	}
	return printRateState(cmd, gate, 0)
}

func printRateState(cmd *cobra.Command, gate *ratelimit.Gate, minInterval time.Duration) error {
	st, err := gate.State(cmd.Context())
	if err != nil {
		return printFailure(cmd, "", err)
	}
	remaining, err := gate.Remaining(cmd.Context(), minInterval)
	if err != nil {
		return printFailure(cmd, "", err)
	}
	return printJSON(cmd, rateSummary{
		Status:           "ok",
		RateStatePath:    gate.Path(),
		State:            st,
		RemainingSeconds: remaining.Round(time.Millisecond).Seconds(),
	})
}
