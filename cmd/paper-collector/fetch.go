// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"github.com/spf13/cobra"

	"github.com/pdiddy/paper-collector/internal/arxiv"
	"github.com/pdiddy/paper-collector/internal/collect"
	"github.com/pdiddy/paper-collector/internal/rundir"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch one labelled arXiv query into a run directory",
	Long: `Fetch sends one search_query to the arXiv API, restricted to the run's date
window and categories, and writes query_results/<label>.json and .md.

A stored result set is reused when every request parameter matches; pass
--force to refetch. Requests honor the shared rate-state file and retry
429/503 responses with exponential backoff.`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, fetchFlagBindings)
	},
	RunE: runFetch,
}

func init() {
	f := fetchCmd.Flags()
	f.String("run-dir", "", "run directory created by init (required)")
	f.String("query", "", "raw arXiv search_query, e.g. all:\"mixture of experts\" (required)")
	f.String("label", "", "label for output files (default: slug of the query)")
	f.String("categories", "", "comma-separated categories (default: the run's categories)")
	f.Int("max-results", collect.DefaultMaxResults, "page size")
	f.Int("start", 0, "page offset")
	f.String("sort-by", arxiv.SortSubmittedDate, "relevance, lastUpdatedDate or submittedDate")
	f.String("sort-order", arxiv.OrderDescending, "ascending or descending")
	f.String("from-date", "", "override window start YYYY-MM-DD")
	f.String("to-date", "", "override window end YYYY-MM-DD")
	f.String("language", "", "Markdown language (default: the run's language)")
	f.Bool("force", false, "ignore a matching stored result set")
	addFetchControlFlags(fetchCmd)
	_ = fetchCmd.MarkFlagRequired("run-dir")
	_ = fetchCmd.MarkFlagRequired("query")

	rootCmd.AddCommand(fetchCmd)
}

type fetchSummary struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
	RunDir string `json:"run_dir"`
	collect.Outcome
}

func runFetch(cmd *cobra.Command, args []string) error {
	f := cmd.Flags()
	dir, _ := f.GetString("run-dir")
	run, err := rundir.Open(dir)
	if err != nil {
		return printFailure(cmd, dir, err)
	}

	query, _ := f.GetString("query")
	label, _ := f.GetString("label")
	categories, _ := f.GetString("categories")
	maxResults, _ := f.GetInt("max-results")
	start, _ := f.GetInt("start")
	sortBy, _ := f.GetString("sort-by")
	sortOrder, _ := f.GetString("sort-order")
	fromDate, _ := f.GetString("from-date")
	toDate, _ := f.GetString("to-date")
	language, _ := f.GetString("language")
	force, _ := f.GetBool("force")

	fetcher := newFetcher(cmd, run, loadConfig())
	out, err := fetcher.FetchQuery(cmd.Context(), collect.QuerySpec{
		Label:      label,
		Query:      query,
		Categories: rundir.SplitCSV(categories),
		FromDate:   fromDate,
		ToDate:     toDate,
		Language:   language,
		Start:      start,
		MaxResults: maxResults,
		SortBy:     sortBy,
		SortOrder:  sortOrder,
		Force:      force,
	})

	sum := fetchSummary{Status: "ok", RunDir: run.Dir, Outcome: out}
	if err != nil {
		sum.Status = "error"
		sum.Error = err.Error()
	}
	if perr := printJSON(cmd, sum); perr != nil && err == nil {
		return perr
	}
	return err
}
