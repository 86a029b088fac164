// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/report"
	"github.com/pdiddy/paper-collector/internal/rundir"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a new collection run directory",
	Long: `Init creates <output-root>/<topic>-<UTC stamp>-<range>/ with empty
query_results/ and query_selection/ directories and a task_meta.json recording
the topic, categories, target range, date window and output language.

The date window comes from --from-date/--to-date or, when those are omitted,
from --lookback ending today (UTC).`,
	RunE: runInit,
}

func init() {
	f := initCmd.Flags()
	f.String("output-root", "", "root directory holding collection runs (required)")
	f.String("topic", "", "topic or goal of the collection (required)")
	f.String("keywords", "", "comma-separated keywords")
	f.String("categories", "", "comma-separated default arXiv categories (e.g. cs.LG,cs.CL)")
	f.String("target-range", rundir.DefaultTargetRange, "desired final paper count, e.g. 5-10")
	f.String("lookback", rundir.DefaultLookback, "date window length when no dates are given: Nd, Nw or Nm")
	f.String("from-date", "", "window start YYYY-MM-DD")
	f.String("to-date", "", "window end YYYY-MM-DD")
	f.String("run-name", "", "explicit run directory name")
	f.String("notes", "", "free-form notes stored in task_meta.json")
	f.String("language", rundir.DefaultLanguage, "language of generated Markdown (English or Chinese)")
	_ = initCmd.MarkFlagRequired("output-root")
	_ = initCmd.MarkFlagRequired("topic")

	rootCmd.AddCommand(initCmd)
}

type initSummary struct {
	RunDir             string `json:"run_dir"`
	TaskMetaJSON       string `json:"task_meta_json"`
	TaskMetaMD         string `json:"task_meta_md"`
	FromDate           string `json:"from_date"`
	ToDate             string `json:"to_date"`
	Language           string `json:"language"`
	LanguageNormalized string `json:"language_normalized"`
}

func runInit(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	str := func(name string) string {
		v, _ := f.GetString(name)
		return v
	}

	run, meta, err := rundir.Init(rundir.InitOptions{
		OutputRoot:  str("output-root"),
		Topic:       str("topic"),
		Keywords:    rundir.SplitCSV(str("keywords")),
		Categories:  rundir.SplitCSV(str("categories")),
		TargetRange: str("target-range"),
		Lookback:    str("lookback"),
		FromDate:    str("from-date"),
		ToDate:      str("to-date"),
		RunName:     str("run-name"),
		Notes:       str("notes"),
		Language:    str("language"),
	})
	if err != nil {
		return printFailure(cmd, "", fmt.Errorf("initializing run: %w", err))
	}

	cmdLog(cmd).Info("run initialized",
		zap.String("run_dir", run.Dir),
		zap.String("from", meta.Params.FromDate),
		zap.String("to", meta.Params.ToDate))

	return printJSON(cmd, initSummary{
		RunDir:             run.Dir,
		TaskMetaJSON:       run.TaskMetaPath(),
		TaskMetaMD:         run.TaskMetaMDPath(),
		FromDate:           meta.Params.FromDate,
		ToDate:             meta.Params.ToDate,
		Language:           meta.Params.Language,
		LanguageNormalized: report.NormalizeLanguage(meta.Params.Language),
	})
}
