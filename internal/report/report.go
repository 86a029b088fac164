// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package report renders the Markdown companions of run-directory artifacts
// in English or Chinese.
package report

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"

	"github.com/pdiddy/paper-collector/pkg/types"
)

//go:embed templates/*.md.tmpl
var templateFS embed.FS

var templates = template.Must(template.New("report").Funcs(template.FuncMap{
	"join": strings.Join,
	"status": func(n int) string {
		if n > 0 {
			return "done"
		}
		return "pending"
	},
}).ParseFS(templateFS, "templates/*.md.tmpl"))

// QueryResult renders query_results/<label>.md.
func QueryResult(set types.QueryResultSet, lang string) (string, error) {
	return render("query_result.md.tmpl", lang, map[string]any{"Set": set})
}

// PaperMetadata renders <base_id>/metadata.md.
func PaperMetadata(p types.MergedPaper, lang string) (string, error) {
	p.Summary = strings.TrimSpace(p.Summary)
	return render("paper_metadata.md.tmpl", lang, map[string]any{"P": p})
}

// PapersIndex renders papers_index.md.
func PapersIndex(entries []types.PaperIndexEntry, lang string) (string, error) {
	return render("papers_index.md.tmpl", lang, map[string]any{"Entries": entries})
}

// TaskMeta renders task_meta.md. Workflow steps show as done once the
// matching log in meta is non-empty.
func TaskMeta(meta types.TaskMeta, lang string) (string, error) {
	return render("task_meta.md.tmpl", lang, map[string]any{"M": meta})
}

func render(name, lang string, data map[string]any) (string, error) {
	data["L"] = labelsFor(name, lang)
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("rendering %s: %w", name, err)
	}
	return strings.TrimRight(buf.String(), " \t\n") + "\n", nil
}
