// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package arxiv builds arXiv API requests and parses its Atom responses.
package arxiv

import (
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// APIBase is the arXiv search endpoint. Declared as a var so tests can
// substitute an httptest server.
var APIBase = "https://export.arxiv.org/api/query"

// DateLayout is the layout of from/to dates.
const DateLayout = "2006-01-02"

// Sort fields and orders accepted by the API.
const (
	SortRelevance       = "relevance"
	SortLastUpdatedDate = "lastUpdatedDate"
	SortSubmittedDate   = "submittedDate"

	OrderAscending  = "ascending"
	OrderDescending = "descending"
)

var (
	sortFields = []string{SortRelevance, SortLastUpdatedDate, SortSubmittedDate}
	sortOrders = []string{OrderAscending, OrderDescending}
)

var submittedDateClause = regexp.MustCompile(`(?i)submittedDate\s*:\s*\[`)

// BuildEffectiveQuery restricts query to categories:
// "(cat:A OR cat:B) AND (query)". Without categories it returns the trimmed
// query unchanged.
func BuildEffectiveQuery(query string, categories []string) string {
	query = strings.TrimSpace(query)
	if len(categories) == 0 {
		return query
	}
	clauses := make([]string, len(categories))
	for i, c := range categories {
		clauses[i] = "cat:" + c
	}
	return "(" + strings.Join(clauses, " OR ") + ") AND (" + query + ")"
}

// AttachSubmittedDateClause appends a submittedDate window covering whole
// days from..to. Queries that already carry a submittedDate clause are
// returned unchanged.
func AttachSubmittedDateClause(query, fromDate, toDate string) (string, error) {
	if submittedDateClause.MatchString(query) {
		return query, nil
	}
	from, err := time.Parse(DateLayout, fromDate)
	if err != nil {
		return "", fmt.Errorf("invalid from date %q: %w", fromDate, err)
	}
	to, err := time.Parse(DateLayout, toDate)
	if err != nil {
		return "", fmt.Errorf("invalid to date %q: %w", toDate, err)
	}
	return fmt.Sprintf("(%s) AND submittedDate:[%s0000 TO %s2359]",
		query, from.Format("20060102"), to.Format("20060102")), nil
}

// ValidateDateWindow checks both dates parse and from <= to.
func ValidateDateWindow(fromDate, toDate string) error {
	from, err := time.Parse(DateLayout, fromDate)
	if err != nil {
		return fmt.Errorf("invalid from date %q (want YYYY-MM-DD)", fromDate)
	}
	to, err := time.Parse(DateLayout, toDate)
	if err != nil {
		return fmt.Errorf("invalid to date %q (want YYYY-MM-DD)", toDate)
	}
	if from.After(to) {
		return fmt.Errorf("from date %s is after to date %s", fromDate, toDate)
	}
	return nil
}

// NewRequestParams validates sort settings and clamps start to >= 0 and
// maxResults to >= 1. Empty sort settings default to submittedDate,
// descending.
func NewRequestParams(searchQuery string, start, maxResults int, sortBy, sortOrder string) (types.RequestParams, error) {
	if sortBy == "" {
		sortBy = SortSubmittedDate
	}
	if sortOrder == "" {
		sortOrder = OrderDescending
	}
	if !slices.Contains(sortFields, sortBy) {
		return types.RequestParams{}, fmt.Errorf("invalid sort_by %q (want one of %s)", sortBy, strings.Join(sortFields, ", "))
	}
	if !slices.Contains(sortOrders, sortOrder) {
		return types.RequestParams{}, fmt.Errorf("invalid sort_order %q (want one of %s)", sortOrder, strings.Join(sortOrders, ", "))
	}
	return types.RequestParams{
		SearchQuery: searchQuery,
		Start:       max(start, 0),
		MaxResults:  max(maxResults, 1),
		SortBy:      sortBy,
		SortOrder:   sortOrder,
	}, nil
}

// RequestURL renders the GET URL for p against APIBase.
func RequestURL(p types.RequestParams) string {
	v := url.Values{}
	v.Set("search_query", p.SearchQuery)
	v.Set("start", fmt.Sprint(p.Start))
	v.Set("max_results", fmt.Sprint(p.MaxResults))
	v.Set("sortBy", p.SortBy)
	v.Set("sortOrder", p.SortOrder)
	return APIBase + "?" + v.Encode()
}
