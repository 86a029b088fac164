// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package arxiv

import (
	"bytes"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed/atom"
	ext "github.com/mmcdole/gofeed/extensions"

	"github.com/pdiddy/paper-collector/pkg/types"
)

// Feed is a parsed API response.
type Feed struct {
	// TotalResults is opensearch:totalResults, or -1 when absent.
	TotalResults int
	Items        []types.ResultItem
}

var (
	idPathSegment = regexp.MustCompile(`/(?:abs|pdf)/([^/?#]+)`)
	versionSuffix = regexp.MustCompile(`v\d+$`)
)

// NormalizeID extracts the versioned identifier from an abs/pdf URL or a bare
// id ("http://arxiv.org/abs/2401.00001v2" -> "2401.00001v2").
func NormalizeID(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if m := idPathSegment.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return raw[strings.LastIndex(raw, "/")+1:]
}

// StableID strips a trailing version suffix: "2401.00001v2" -> "2401.00001".
func StableID(id string) string {
	return versionSuffix.ReplaceAllString(id, "")
}

// ParseFeed decodes an Atom response into indexed result items, in API
// order with indexes starting at 0. An arXiv error entry is returned as an
// error.
func ParseFeed(data []byte) (Feed, error) {
	parser := atom.Parser{}
	feed, err := parser.Parse(bytes.NewReader(data))
	if err != nil {
		return Feed{}, fmt.Errorf("parsing arXiv Atom feed: %w", err)
	}

	out := Feed{TotalResults: -1}
	if v := extValue(feed.Extensions, "opensearch", "totalResults"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			out.TotalResults = n
		}
	}

	for _, entry := range feed.Entries {
		if strings.Contains(entry.ID, "/api/errors") {
			return Feed{}, fmt.Errorf("arXiv API error: %s", collapse(entry.Summary))
		}
		item := entryToItem(entry)
		item.Index = len(out.Items)
		out.Items = append(out.Items, item)
	}
	return out, nil
}

func entryToItem(e *atom.Entry) types.ResultItem {
	id := NormalizeID(collapse(e.ID))
	item := types.ResultItem{
		ID:         id,
		BaseID:     StableID(id),
		Title:      collapse(e.Title),
		Summary:    collapse(e.Summary),
		Authors:    []string{},
		Categories: []string{},
		Published:  collapse(e.Published),
		Updated:    collapse(e.Updated),
		Comment:    extValue(e.Extensions, "arxiv", "comment"),
		JournalRef: extValue(e.Extensions, "arxiv", "journal_ref"),
		DOI:        extValue(e.Extensions, "arxiv", "doi"),
	}

	for _, a := range e.Authors {
		if name := collapse(a.Name); name != "" {
			item.Authors = append(item.Authors, name)
		}
	}
	for _, c := range e.Categories {
		if term := strings.TrimSpace(c.Term); term != "" {
			item.Categories = append(item.Categories, term)
		}
	}

	item.PrimaryCategory = extAttr(e.Extensions, "arxiv", "primary_category", "term")
	if item.PrimaryCategory == "" && len(item.Categories) > 0 {
		item.PrimaryCategory = item.Categories[0]
	}

	if id != "" {
		item.AbsURL = "https://arxiv.org/abs/" + id
		item.PDFURL = "https://arxiv.org/pdf/" + id + ".pdf"
	}
	for _, l := range e.Links {
		if l.Href == "" {
			continue
		}
		switch {
		case l.Title == "pdf" || l.Type == "application/pdf":
			item.PDFURL = l.Href
		case l.Rel == "alternate" && l.Type == "text/html":
			item.AbsURL = l.Href
		}
	}
	return item
}

func extValue(exts ext.Extensions, ns, name string) string {
	if list := exts[ns][name]; len(list) > 0 {
		return collapse(list[0].Value)
	}
	return ""
}

func extAttr(exts ext.Extensions, ns, name, attr string) string {
	if list := exts[ns][name]; len(list) > 0 {
		return strings.TrimSpace(list[0].Attrs[attr])
	}
	return ""
}

// collapse folds runs of whitespace into single spaces.
func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
