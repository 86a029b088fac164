// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"maps"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/batch"
	"github.com/pdiddy/paper-collector/internal/rundir"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Fetch every query of a JSON or YAML plan",
	Long: `Batch runs the queries of a plan file one after another, sharing one rate
gate. The plan is a list of {label, query, max_results, categories, language,
from_date, to_date, sort_by, sort_order, start} items, or an object with a
"queries" list.

Items without max_results get an automatic page size derived from the run's
target range: ceil(target/queries) * oversample, clamped to [6, cap].
Without --continue-on-error the batch stops at the first failed query.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		bindings := maps.Clone(fetchFlagBindings)
		bindings[keyBatchOversample] = "oversample-factor"
		bindings[keyBatchDefaultMax] = "default-max-results"
		bindings[keyBatchMaxResultsCap] = "max-results-cap"
		bindings[keyBatchContinueOnError] = "continue-on-error"
		return bindFlags(cmd, bindings)
	},
	RunE: runBatch,
}

func init() {
	f := batchCmd.Flags()
	f.String("run-dir", "", "run directory created by init (required)")
	f.String("plan", "", "query plan file, JSON or YAML (required)")
	f.String("language", "", "default Markdown language (default: the run's language)")
	f.Int("oversample-factor", batch.DefaultOversampleFactor, "multiplier from per-query target to page size")
	f.Int("default-max-results", 0, "fixed page size for items without max_results (0 = automatic)")
	f.Int("max-results-cap", batch.DefaultMaxResultsCap, "upper bound of the automatic page size")
	f.Bool("continue-on-error", false, "keep going after a failed query")
	f.Bool("force", false, "ignore matching stored result sets")
	addFetchControlFlags(batchCmd)
	_ = batchCmd.MarkFlagRequired("run-dir")
	_ = batchCmd.MarkFlagRequired("plan")

	rootCmd.AddCommand(batchCmd)
}

func runBatch(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dir, _ := f.GetString("run-dir")
	run, err := rundir.Open(dir)
	if err != nil {
		return printFailure(cmd, dir, err)
	}

	planPath, _ := f.GetString("plan")
	if abs, err := filepath.Abs(planPath); err == nil {
		planPath = abs
	}
	plan, err := batch.LoadPlan(planPath)
	if err != nil {
		return printFailure(cmd, run.Dir, err)
	}

	meta, err := run.LoadTaskMeta()
	if err != nil {
		return printFailure(cmd, run.Dir, err)
	}
	language, _ := f.GetString("language")
	force, _ := f.GetBool("force")

	cfg := loadConfig()
	fetcher := newFetcher(cmd, run, cfg)
	runner := batch.NewRunner(fetcher, cmdLog(cmd))

	sum := runner.RunBatch(cmd.Context(), plan, batch.Options{
		TargetRange:       meta.Params.TargetRange,
		Language:          rundir.Language(language, meta),
		Categories:        meta.Params.Categories,
		OversampleFactor:  cfg.Batch.OversampleFactor,
		DefaultMaxResults: cfg.Batch.DefaultMaxResults,
		MaxResultsCap:     cfg.Batch.MaxResultsCap,
		ContinueOnError:   cfg.Batch.ContinueOnError,
		Force:             force,
	})
	sum.RunDir = run.Dir
	sum.PlanJSON = planPath
	sum.RateLimitDefaults = cfg.FetchControl(run.RateStatePath(cfg.Rate.StatePath))

	if err := printJSON(cmd, sum); err != nil {
		return err
	}
	if err := sum.Err(); err != nil {
		return err
	}
	return cmd.Context().Err()
}
