// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package batch runs a plan of labelled queries one after another through
// the single-query fetch, deriving a page size from the run's target range.
package batch

import (
	"errors"
	"fmt"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-collector/internal/collect"
	"github.com/pdiddy/paper-collector/internal/rundir"
)

// ErrEmptyPlan is returned for a plan without query items.
var ErrEmptyPlan = errors.New("query plan has no items")

// Page-size derivation defaults.
const (
	DefaultOversampleFactor = 2
	DefaultMaxResultsCap    = 60
	MinAutoMaxResults       = 6
	DefaultTargetMax        = 10
)

// StringList decodes from either a comma-separated string or a list.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		*s = rundir.SplitCSV(value.Value)
		return nil
	case yaml.SequenceNode:
		var raw []string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		out := StringList{}
		for _, v := range raw {
			if v = strings.TrimSpace(v); v != "" {
				out = append(out, v)
			}
		}
		*s = out
		return nil
	default:
		return fmt.Errorf("line %d: categories must be a string or a list", value.Line)
	}
}

// PlanItem is one query of a plan. Zero values mean "use the batch default".
type PlanItem struct {
	Label      string     `yaml:"label" json:"label"`
	Query      string     `yaml:"query" json:"query"`
	MaxResults int        `yaml:"max_results" json:"max_results,omitempty"`
	Categories StringList `yaml:"categories" json:"categories,omitempty"`
	Language   string     `yaml:"language" json:"language,omitempty"`
	FromDate   string     `yaml:"from_date" json:"from_date,omitempty"`
	ToDate     string     `yaml:"to_date" json:"to_date,omitempty"`
	SortBy     string     `yaml:"sort_by" json:"sort_by,omitempty"`
	SortOrder  string     `yaml:"sort_order" json:"sort_order,omitempty"`
	Start      int        `yaml:"start" json:"start,omitempty"`
}

// Plan is a validated, ordered list of items with unique labels.
type Plan struct {
	Items []PlanItem
}

// LoadPlan reads a plan file.
func LoadPlan(path string) (Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Plan{}, fmt.Errorf("reading plan: %w", err)
	}
	plan, err := ParsePlan(data)
	if err != nil {
		return Plan{}, fmt.Errorf("plan %s: %w", path, err)
	}
	return plan, nil
}

// ParsePlan decodes a JSON or YAML plan: either a list of items or an
// object with a "queries" list. Items need a non-empty query; labels default
// to a slug of the query and must be unique.
func ParsePlan(data []byte) (Plan, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Plan{}, fmt.Errorf("parsing plan: %w", err)
	}
	root := &doc
	if root.Kind == 0 {
		return Plan{}, ErrEmptyPlan
	}
	if root.Kind == yaml.DocumentNode {
		if len(root.Content) == 0 {
			return Plan{}, ErrEmptyPlan
		}
		root = root.Content[0]
	}

	var items []PlanItem
	switch root.Kind {
	case yaml.SequenceNode:
		if err := root.Decode(&items); err != nil {
			return Plan{}, fmt.Errorf("decoding plan items: %w", err)
		}
	case yaml.MappingNode:
		var wrapper struct {
			Queries []PlanItem `yaml:"queries"`
		}
		if err := root.Decode(&wrapper); err != nil {
			return Plan{}, fmt.Errorf("decoding plan items: %w", err)
		}
		items = wrapper.Queries
	default:
		return Plan{}, fmt.Errorf("plan must be a list or an object with a queries list")
	}
	if len(items) == 0 {
		return Plan{}, ErrEmptyPlan
	}

	seen := make(map[string]int, len(items))
	for i := range items {
		it := &items[i]
		it.Query = strings.TrimSpace(it.Query)
		if it.Query == "" {
			return Plan{}, fmt.Errorf("plan item %d: query is required", i)
		}
		it.Label = strings.TrimSpace(it.Label)
		if it.Label == "" {
			it.Label = rundir.Slugify(it.Query, "query")
		}
		if err := collect.ValidateLabel(it.Label); err != nil {
			return Plan{}, fmt.Errorf("plan item %d: %w", i, err)
		}
		if prev, dup := seen[it.Label]; dup {
			return Plan{}, fmt.Errorf("plan items %d and %d share label %q", prev, i, it.Label)
		}
		seen[it.Label] = i
	}
	return Plan{Items: items}, nil
}

var targetRangeExpr = regexp.MustCompile(`^(\d+)\s*-\s*(\d+)$`)

// ParseTargetMax returns the upper bound of a target range: "5-10" -> 10,
// "7" -> 7. Anything else yields 10. The result is at least 1.
func ParseTargetMax(raw string) int {
	raw = strings.TrimSpace(raw)
	if m := targetRangeExpr.FindStringSubmatch(raw); m != nil {
		n, _ := strconv.Atoi(m[2])
		return max(n, 1)
	}
	if n, err := strconv.Atoi(raw); err == nil && n >= 0 {
		return max(n, 1)
	}
	return DefaultTargetMax
}

// AutoMaxResults derives the per-query target ceil(targetMax/queryCount) and
// the page size clamp(perQuery*oversample, 6, cap). A positive override
// replaces the derived page size.
func AutoMaxResults(targetMax, queryCount, oversample, override, maxCap int) (perQuery, pageSize int) {
	perQuery = int(math.Ceil(float64(targetMax) / float64(max(queryCount, 1))))
	if override > 0 {
		return perQuery, override
	}
	pageSize = perQuery * max(oversample, 1)
	pageSize = max(pageSize, MinAutoMaxResults)
	pageSize = min(pageSize, max(maxCap, 1))
	return perQuery, pageSize
}
