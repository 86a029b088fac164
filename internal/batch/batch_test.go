// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/paper-collector/internal/collect"
)

// stubFetcher records specs and fails for labels listed in fail.
type stubFetcher struct {
	specs []collect.QuerySpec
	fail  map[string]error
}

func (s *stubFetcher) FetchQuery(_ context.Context, spec collect.QuerySpec) (collect.Outcome, error) {
	s.specs = append(s.specs, spec)
	out := collect.Outcome{Label: spec.Label, APIReturnedCount: spec.MaxResults, RequestAttempts: 1}
	if err := s.fail[spec.Label]; err != nil {
		return out, err
	}
	return out, nil
}

func TestParsePlanShapes(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"json list", `[{"label":"a","query":"moe"},{"label":"b","query":"routing"}]`},
		{"json object", `{"queries":[{"label":"a","query":"moe"},{"label":"b","query":"routing"}]}`},
		{"yaml list", "- label: a\n  query: moe\n- label: b\n  query: routing\n"},
		{"yaml object", "queries:\n  - label: a\n    query: moe\n  - label: b\n    query: routing\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParsePlan([]byte(tt.data))
			require.NoError(t, err)
			require.Len(t, plan.Items, 2)
			assert.Equal(t, "a", plan.Items[0].Label)
			assert.Equal(t, "routing", plan.Items[1].Query)
		})
	}
}

func TestParsePlanCategoriesStringOrList(t *testing.T) {
	plan, err := ParsePlan([]byte(`
- query: sparse experts
  categories: "cs.LG, cs.CL"
- label: two
  query: routers
  categories: [cs.AI, " "]
  max_results: 25
  language: Chinese
`))
	require.NoError(t, err)
	assert.Equal(t, StringList{"cs.LG", "cs.CL"}, plan.Items[0].Categories)
	assert.Equal(t, "sparse-experts", plan.Items[0].Label)
	assert.Equal(t, StringList{"cs.AI"}, plan.Items[1].Categories)
	assert.Equal(t, 25, plan.Items[1].MaxResults)
	assert.Equal(t, "Chinese", plan.Items[1].Language)
}

func TestParsePlanErrors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
		msg     string
	}{
		{"empty document", "", ErrEmptyPlan, ""},
		{"empty list", "[]", ErrEmptyPlan, ""},
		{"empty queries", `{"queries":[]}`, ErrEmptyPlan, ""},
		{"missing query", `[{"label":"a"}]`, nil, "query is required"},
		{"duplicate label", `[{"label":"a","query":"x"},{"label":"a","query":"y"}]`, nil, "share label"},
		{"duplicate slug", `[{"query":"Moe routing"},{"query":"moe  routing"}]`, nil, "share label"},
		{"bad label", `[{"label":"../x","query":"x"}]`, nil, "invalid label"},
		{"scalar root", `"just a string"`, nil, "must be a list"},
		{"bad categories", `[{"query":"x","categories":{"a":1}}]`, nil, "categories"},
		{"malformed", `[{"query":`, nil, "parsing plan"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParsePlan([]byte(tt.data))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.msg != "" {
				assert.Contains(t, err.Error(), tt.msg)
			}
		})
	}
}

func TestLoadPlan(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("- query: moe\n"), 0o644))

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.Equal(t, "moe", plan.Items[0].Label)

	_, err = LoadPlan(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestParseTargetMax(t *testing.T) {
	tests := []struct {
		raw  string
		want int
	}{
		{"5-10", 10},
		{" 3 - 8 ", 8},
		{"7", 7},
		{"0", 1},
		{"0-0", 1},
		{"", 10},
		{"many", 10},
		{"-4", 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseTargetMax(tt.raw), "raw %q", tt.raw)
	}
}

func TestAutoMaxResults(t *testing.T) {
	tests := []struct {
		name                                  string
		target, queries, oversample, override int
		maxCap                                int
		wantPer, wantPage                     int
	}{
		{"two queries", 10, 2, 2, 0, 60, 5, 10},
		{"floor of six", 10, 5, 2, 0, 60, 2, 6},
		{"capped", 50, 1, 2, 0, 60, 50, 60},
		{"override wins", 10, 2, 2, 33, 60, 5, 33},
		{"rounds up", 10, 3, 3, 0, 60, 4, 12},
		{"zero queries", 10, 0, 2, 0, 60, 10, 20},
		{"zero oversample", 10, 1, 0, 0, 60, 10, 10},
		{"cap below floor", 10, 1, 2, 0, 4, 10, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			per, page := AutoMaxResults(tt.target, tt.queries, tt.oversample, tt.override, tt.maxCap)
			assert.Equal(t, tt.wantPer, per)
			assert.Equal(t, tt.wantPage, page)
		})
	}
}

func threeItemPlan() Plan {
	return Plan{Items: []PlanItem{
		{Label: "a", Query: "moe"},
		{Label: "b", Query: "routing", MaxResults: 15, Categories: StringList{"cs.CL"}, Language: "English"},
		{Label: "c", Query: "experts"},
	}}
}

func TestRunBatchAppliesDefaults(t *testing.T) {
	f := &stubFetcher{}
	sum := NewRunner(f, nil).RunBatch(context.Background(), threeItemPlan(), Options{
		TargetRange: "5-10",
		Language:    "Chinese",
		Categories:  []string{"cs.LG"},
		Force:       true,
	})

	require.NoError(t, sum.Err())
	assert.Equal(t, 3, sum.QueryCount)
	assert.Equal(t, 10, sum.TargetMax)
	assert.Equal(t, 4, sum.TargetPerQuery)
	assert.Equal(t, 8, sum.AutoMaxResults)
	assert.Equal(t, 3, sum.Executed)
	assert.Equal(t, 3, sum.Succeeded)
	assert.Equal(t, "Chinese", sum.DefaultLanguage)

	require.Len(t, f.specs, 3)
	assert.Equal(t, 8, f.specs[0].MaxResults)
	assert.Equal(t, []string{"cs.LG"}, f.specs[0].Categories)
	assert.Equal(t, "Chinese", f.specs[0].Language)
	assert.True(t, f.specs[0].Force)

	assert.Equal(t, 15, f.specs[1].MaxResults)
	assert.Equal(t, []string{"cs.CL"}, f.specs[1].Categories)
	assert.Equal(t, "English", f.specs[1].Language)

	for i, res := range sum.Results {
		assert.Equal(t, i, res.Index)
		assert.Equal(t, StatusOK, res.Status)
		require.NotNil(t, res.Result)
	}
}

func TestRunBatchStopsOnFirstFailure(t *testing.T) {
	f := &stubFetcher{fail: map[string]error{"b": errors.New("HTTP 400")}}
	sum := NewRunner(f, nil).RunBatch(context.Background(), threeItemPlan(), Options{})

	assert.Equal(t, 2, sum.Executed)
	assert.Equal(t, 1, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	require.Len(t, sum.Results, 2)
	assert.Equal(t, StatusError, sum.Results[1].Status)
	assert.Equal(t, "HTTP 400", sum.Results[1].Error)
	assert.Error(t, sum.Err())
	assert.Len(t, f.specs, 2)
}

func TestRunBatchContinueOnError(t *testing.T) {
	f := &stubFetcher{fail: map[string]error{"a": errors.New("boom")}}
	sum := NewRunner(f, nil).RunBatch(context.Background(), threeItemPlan(), Options{ContinueOnError: true})

	assert.Equal(t, 3, sum.Executed)
	assert.Equal(t, 2, sum.Succeeded)
	assert.Equal(t, 1, sum.Failed)
	assert.Equal(t, []string{StatusError, StatusOK, StatusOK},
		[]string{sum.Results[0].Status, sum.Results[1].Status, sum.Results[2].Status})
	assert.Error(t, sum.Err())
}

func TestRunBatchCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := &stubFetcher{}
	sum := NewRunner(f, nil).RunBatch(ctx, threeItemPlan(), Options{})
	assert.Zero(t, sum.Executed)
	assert.Empty(t, sum.Results)
	assert.Empty(t, f.specs)
	assert.NoError(t, sum.Err())
}
