// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package collect fetches one labelled query into a run directory, reusing a
// previously stored result set when its request fingerprint matches exactly.
package collect

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-collector/internal/fsutil"
	"github.com/pdiddy/paper-collector/internal/logger"
	"github.com/pdiddy/paper-collector/internal/metrics"
	"github.com/pdiddy/paper-collector/internal/rundir"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Fingerprint is the request identity of a result set. A stored set is
// reusable only when every field matches.
type Fingerprint struct {
	Label          string
	Query          string
	EffectiveQuery string
	Categories     []string
	FromDate       string
	ToDate         string
	Request        types.RequestParams
}

// FingerprintOf extracts the fingerprint recorded in a stored set.
func FingerprintOf(set types.QueryResultSet) Fingerprint {
	return Fingerprint{
		Label:          set.Label,
		Query:          set.Query,
		EffectiveQuery: set.EffectiveQuery,
		Categories:     set.Categories,
		FromDate:       set.FromDate,
		ToDate:         set.ToDate,
		Request:        set.Request,
	}
}

// Mismatch names the first field that differs, or "" when f and o match.
// Category lists compare in order.
func (f Fingerprint) Mismatch(o Fingerprint) string {
	switch {
	case f.Label != o.Label:
		return "label"
	case f.Query != o.Query:
		return "query"
	case f.EffectiveQuery != o.EffectiveQuery:
		return "effective_query"
	case f.FromDate != o.FromDate || f.ToDate != o.ToDate:
		return "date_window"
	case !slices.Equal(f.Categories, o.Categories):
		return "categories"
	case f.Request.SearchQuery != o.Request.SearchQuery:
		return "search_query"
	case f.Request.Start != o.Request.Start:
		return "start"
	case f.Request.MaxResults != o.Request.MaxResults:
		return "max_results"
	case f.Request.SortBy != o.Request.SortBy:
		return "sortBy"
	case f.Request.SortOrder != o.Request.SortOrder:
		return "sortOrder"
	}
	return ""
}

// Lookup is the outcome of a cache consultation.
type Lookup struct {
	Hit    bool
	Set    *types.QueryResultSet
	Reason string
}

// Hit wraps a reusable set.
func Hit(set *types.QueryResultSet) Lookup { return Lookup{Hit: true, Set: set} }

// Miss records why nothing could be reused.
func Miss(reason string) Lookup { return Lookup{Reason: reason} }

// Cache looks up stored result sets in a run directory.
type Cache struct {
	run *rundir.Run
	log *zap.Logger
}

// NewCache returns a Cache over run.
func NewCache(run *rundir.Run, log *zap.Logger) *Cache {
	return &Cache{run: run, log: logger.OrNop(log)}
}

// Lookup returns the stored set for fp.Label when its fingerprint equals fp
// and its Markdown sibling exists. force always misses.
func (c *Cache) Lookup(fp Fingerprint, force bool) Lookup {
	l := c.lookup(fp, force)
	switch {
	case l.Hit:
		metrics.CacheLookupsTotal.WithLabelValues("hit").Inc()
	case force:
		metrics.CacheLookupsTotal.WithLabelValues("forced").Inc()
	default:
		metrics.CacheLookupsTotal.WithLabelValues("miss").Inc()
	}
	c.log.Debug("result cache lookup",
		zap.String("label", fp.Label),
		zap.Bool("hit", l.Hit),
		zap.String("reason", l.Reason))
	return l
}

func (c *Cache) lookup(fp Fingerprint, force bool) Lookup {
	if force {
		return Miss("forced")
	}
	jsonPath := c.run.QueryResultJSON(fp.Label)
	if _, err := os.Stat(c.run.QueryResultMD(fp.Label)); err != nil {
		return Miss("markdown missing")
	}

	var set types.QueryResultSet
	if err := fsutil.ReadJSON(jsonPath, &set); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Miss("not cached")
		}
		return Miss(fmt.Sprintf("unreadable: %v", err))
	}
	if field := FingerprintOf(set).Mismatch(fp); field != "" {
		return Miss(field + " changed")
	}
	return Hit(&set)
}
