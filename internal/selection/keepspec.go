// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package selection merges the items kept from each labelled result set into
// one deduplicated corpus and materializes it as per-paper directories.
package selection

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/pdiddy/paper-collector/internal/arxiv"
	"github.com/pdiddy/paper-collector/pkg/types"
)

// Keep lists the position indexes and stable ids retained for one label.
type Keep struct {
	Indexes []int
	IDs     []string
}

// Empty reports whether nothing is kept.
func (k Keep) Empty() bool { return len(k.Indexes) == 0 && len(k.IDs) == 0 }

// Len is the number of keep references.
func (k Keep) Len() int { return len(k.Indexes) + len(k.IDs) }

// normalized returns sorted, unique indexes and stable ids. IDs given as
// abs/pdf URLs or with a version suffix collapse to their stable form.
func (k Keep) normalized() Keep {
	idx := slices.Clone(k.Indexes)
	slices.Sort(idx)
	idx = slices.Compact(idx)

	ids := make([]string, 0, len(k.IDs))
	for _, raw := range k.IDs {
		if id := arxiv.StableID(arxiv.NormalizeID(raw)); id != "" {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	ids = slices.Compact(ids)

	if idx == nil {
		idx = []int{}
	}
	return Keep{Indexes: idx, IDs: ids}
}

// KeepSpec maps every mentioned label to its keep list. A label present with
// an empty Keep is an explicit "keep nothing".
type KeepSpec map[string]Keep

// Labels returns the mentioned labels in sorted order.
func (s KeepSpec) Labels() []string {
	labels := make([]string, 0, len(s))
	for l := range s {
		labels = append(labels, l)
	}
	sort.Strings(labels)
	return labels
}

// Combine returns the per-label union of s and o.
func (s KeepSpec) Combine(o KeepSpec) KeepSpec {
	out := make(KeepSpec, len(s)+len(o))
	for l, k := range s {
		out[l] = k
	}
	for l, k := range o {
		prev := out[l]
		out[l] = Keep{
			Indexes: append(slices.Clone(prev.Indexes), k.Indexes...),
			IDs:     append(slices.Clone(prev.IDs), k.IDs...),
		}
	}
	return out
}

// Overlay returns s with every label mentioned in o replaced by o's entry.
// Labels only in s are kept unchanged.
func (s KeepSpec) Overlay(o KeepSpec) KeepSpec {
	out := make(KeepSpec, len(s)+len(o))
	for l, k := range s {
		out[l] = k
	}
	for l, k := range o {
		out[l] = k
	}
	return out
}

// Normalized returns a copy with every entry normalized.
func (s KeepSpec) Normalized() KeepSpec {
	out := make(KeepSpec, len(s))
	for l, k := range s {
		out[l] = k.normalized()
	}
	return out
}

// FromManifest rebuilds the keep spec a previous merge recorded.
func FromManifest(m types.SelectionManifest) KeepSpec {
	out := make(KeepSpec, len(m))
	for label, entry := range m {
		label = strings.TrimSpace(label)
		if label == "" {
			continue
		}
		out[label] = Keep{Indexes: entry.KeepIndexes, IDs: entry.KeepIDs}
	}
	return out
}

// ParseKeepFlags parses repeated "label:0,2,5" values. Repeats of a label
// accumulate.
func ParseKeepFlags(values []string) (KeepSpec, error) {
	out := KeepSpec{}
	for _, v := range values {
		label, raw, err := splitFlag(v, "--keep", "label:0,1,2")
		if err != nil {
			return nil, err
		}
		k := out[label]
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			n, err := strconv.Atoi(part)
			if err != nil {
				return nil, fmt.Errorf("invalid --keep spec %q: index %q is not an integer", v, part)
			}
			k.Indexes = append(k.Indexes, n)
		}
		out[label] = k
	}
	return out, nil
}

// ParseKeepIDFlags parses repeated "label:id1,id2" values.
func ParseKeepIDFlags(values []string) (KeepSpec, error) {
	out := KeepSpec{}
	for _, v := range values {
		label, raw, err := splitFlag(v, "--keep-id", "label:id1,id2")
		if err != nil {
			return nil, err
		}
		k := out[label]
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				k.IDs = append(k.IDs, part)
			}
		}
		out[label] = k
	}
	return out, nil
}

func splitFlag(v, flag, want string) (string, string, error) {
	label, raw, ok := strings.Cut(v, ":")
	if !ok {
		return "", "", fmt.Errorf("invalid %s spec %q: expected %s", flag, v, want)
	}
	label = strings.TrimSpace(label)
	if label == "" {
		return "", "", fmt.Errorf("invalid %s spec %q: empty label", flag, v)
	}
	return label, raw, nil
}

// LoadSelectionJSON reads a selection file. See ParseSelectionJSON.
func LoadSelectionJSON(path string) (KeepSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading selection JSON: %w", err)
	}
	return ParseSelectionJSON(data)
}

// ParseSelectionJSON decodes {label: [indexes_or_ids]} or
// {label: {keep_indexes: [...], keep_ids: [...]}}. In the list form integers
// and all-digit strings are indexes; other strings are ids.
func ParseSelectionJSON(data []byte) (KeepSpec, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid selection JSON: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("selection JSON must be an object: {label: [indexes_or_ids]} or {label: {keep_indexes, keep_ids}}")
	}

	out := KeepSpec{}
	for rawLabel, value := range raw {
		label := strings.TrimSpace(rawLabel)
		if label == "" {
			continue
		}
		var k Keep
		switch v := value.(type) {
		case []any:
			for _, item := range v {
				if n, ok := asIndex(item); ok {
					k.Indexes = append(k.Indexes, n)
				} else if s, ok := item.(string); ok && strings.TrimSpace(s) != "" {
					k.IDs = append(k.IDs, strings.TrimSpace(s))
				}
			}
		case map[string]any:
			if list, ok := v["keep_indexes"].([]any); ok {
				for _, item := range list {
					if n, ok := asIndex(item); ok {
						k.Indexes = append(k.Indexes, n)
					}
				}
			}
			if list, ok := v["keep_ids"].([]any); ok {
				for _, item := range list {
					if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
						k.IDs = append(k.IDs, s)
					}
				}
			}
		default:
			return nil, fmt.Errorf("selection JSON entry for %q must be a list or an object, got %T", label, value)
		}
		out[label] = k
	}
	return out, nil
}

// asIndex accepts JSON integers and strings made only of digits.
func asIndex(v any) (int, bool) {
	switch x := v.(type) {
	case json.Number:
		n, err := strconv.Atoi(x.String())
		return n, err == nil
	case string:
		s := strings.TrimSpace(x)
		if s == "" || strings.TrimLeft(s, "0123456789") != "" {
			return 0, false
		}
		n, err := strconv.Atoi(s)
		return n, err == nil
	}
	return 0, false
}
