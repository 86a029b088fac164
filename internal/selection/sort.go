// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package selection

import (
	"cmp"
	"fmt"
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// SortMode orders the merged corpus.
type SortMode string

// Sort modes.
const (
	SortPublishedDesc SortMode = "published_desc"
	SortPublishedAsc  SortMode = "published_asc"
	SortTitle         SortMode = "title"
)

// ParseSortMode validates s. Empty means SortPublishedDesc.
func ParseSortMode(s string) (SortMode, error) {
	switch mode := SortMode(strings.TrimSpace(s)); mode {
	case "":
		return SortPublishedDesc, nil
	case SortPublishedDesc, SortPublishedAsc, SortTitle:
		return mode, nil
	default:
		return "", fmt.Errorf("unknown sort mode %q (want published_desc, published_asc or title)", s)
	}
}

// SortPapers sorts in place. Sorting is stable; unparseable publish dates
// sort as the zero time.
func SortPapers(papers []types.MergedPaper, mode SortMode) {
	switch mode {
	case SortTitle:
		fold := cases.Fold()
		keys := make(map[string]string, len(papers))
		for _, p := range papers {
			keys[p.BaseID] = fold.String(norm.NFKC.String(p.Title))
		}
		slices.SortStableFunc(papers, func(a, b types.MergedPaper) int {
			return strings.Compare(keys[a.BaseID], keys[b.BaseID])
		})
	case SortPublishedAsc:
		slices.SortStableFunc(papers, func(a, b types.MergedPaper) int {
			return cmp.Compare(publishedUnix(a), publishedUnix(b))
		})
	default:
		slices.SortStableFunc(papers, func(a, b types.MergedPaper) int {
			return cmp.Compare(publishedUnix(b), publishedUnix(a))
		})
	}
}

func publishedUnix(p types.MergedPaper) int64 {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(p.Published))
	if err != nil {
		return 0
	}
	return t.Unix()
}
