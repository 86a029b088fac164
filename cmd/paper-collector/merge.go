// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/internal/selection"
)

var mergeCmd = &cobra.Command{
	Use:   "merge",
	Short: "Merge kept papers into the run's final corpus",
	Long: `Merge resolves the papers to keep from each labelled result set, dedupes
them by stable arXiv id and writes one <base_id>/ directory per paper plus
papers_index.json and .md.

Keep lists come from --keep label:0,2,5, --keep-id label:2601.00001 and
--selection-json {label: [indexes_or_ids]}. A label in the JSON file replaces
that label's command-line entry. With --incremental the previous manifest is
the base and every label mentioned now replaces its previous entry.

Paper directories from the previous merge that are no longer selected are
removed. A selected label without a stored result set aborts the merge
before anything is written.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, map[string]string{
			keyMergeSortBy:   "sort-by",
			keyMergeMaxFinal: "max-final",
		})
	},
	RunE: runMerge,
}

func init() {
	f := mergeCmd.Flags()
	f.String("run-dir", "", "run directory created by init (required)")
	f.StringArray("keep", nil, "keep indexes, label:0,2,5 (repeatable)")
	f.StringArray("keep-id", nil, "keep arXiv ids, label:2601.00001,2601.00002 (repeatable)")
	f.String("selection-json", "", "JSON file {label: [indexes_or_ids]} or {label: {keep_indexes, keep_ids}}")
	f.Bool("incremental", false, "apply this selection on top of the previous manifest")
	f.Int("max-final", 0, "cap on merged papers (0 = no cap)")
	f.String("sort-by", string(selection.SortPublishedDesc), "published_desc, published_asc or title")
	f.String("language", "", "Markdown language (default: the run's language)")
	_ = mergeCmd.MarkFlagRequired("run-dir")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dir, _ := f.GetString("run-dir")
	run, err := rundir.Open(dir)
	if err != nil {
		return printFailure(cmd, dir, err)
	}

	spec, err := keepSpecFromFlags(cmd)
	if err != nil {
		return printFailure(cmd, run.Dir, err)
	}
	incremental, _ := f.GetBool("incremental")
	language, _ := f.GetString("language")

	merger := selection.NewMerger(run, selection.WithLogger(cmdLog(cmd)))
	sum, err := merger.Merge(cmd.Context(), selection.Request{
		Spec:        spec,
		Incremental: incremental,
		SortMode:    selection.SortMode(viper.GetString(keyMergeSortBy)),
		MaxFinal:    viper.GetInt(keyMergeMaxFinal),
		Language:    language,
	})
	if err != nil {
		return printFailure(cmd, run.Dir, err)
	}
	return printJSON(cmd, struct {
		Status string `json:"status"`
		selection.Summary
	}{"ok", sum})
}

// keepSpecFromFlags combines --keep and --keep-id per label, then lets
// --selection-json entries replace whole labels.
func keepSpecFromFlags(cmd *cobra.Command) (selection.KeepSpec, error) {
	f := cmd.Flags()
	keeps, _ := f.GetStringArray("keep")
	keepIDs, _ := f.GetStringArray("keep-id")
	jsonPath, _ := f.GetString("selection-json")

	byIndex, err := selection.ParseKeepFlags(keeps)
	if err != nil {
		return nil, err
	}
	byID, err := selection.ParseKeepIDFlags(keepIDs)
	if err != nil {
		return nil, err
	}
	spec := byIndex.Combine(byID)

	if jsonPath != "" {
		fromJSON, err := selection.LoadSelectionJSON(jsonPath)
		if err != nil {
			return nil, err
		}
		spec = spec.Overlay(fromJSON)
	}
	return spec, nil
}
