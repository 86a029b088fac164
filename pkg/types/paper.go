// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// ResultItem is one paper as returned by the arXiv API, positioned within
// its result set.
type ResultItem struct {
	// Index is the zero-based position in API response order.
	Index int `json:"index"`

	// ID is the versioned arXiv identifier (e.g. "2301.07041v2").
	ID string `json:"id"`

	// BaseID is the stable identifier: ID with the version suffix stripped.
	BaseID string `json:"base_id"`

	Title           string   `json:"title"`
	Summary         string   `json:"summary"`
	Authors         []string `json:"authors"`
	Published       string   `json:"published"`
	Updated         string   `json:"updated"`
	PrimaryCategory string   `json:"primary_category"`
	Categories      []string `json:"categories"`
	Comment         string   `json:"comment"`
	JournalRef      string   `json:"journal_ref"`
	DOI             string   `json:"doi"`
	AbsURL          string   `json:"abs_url"`
	PDFURL          string   `json:"pdf_url"`
}

// MergedPaper is a corpus entry: the first kept copy of an item plus every
// label that selected it.
type MergedPaper struct {
	ResultItem

	// SelectedFromLabels is the sorted set of labels that kept this paper.
	SelectedFromLabels []string `json:"selected_from_labels"`
}

// PaperIndexEntry is one row of papers_index.json.
type PaperIndexEntry struct {
	ArxivID         string `json:"arxiv_id"`
	Title           string `json:"title"`
	PrimaryCategory string `json:"primary_category"`
	Published       string `json:"published"`
	PaperDir        string `json:"paper_dir"`
	MetadataMD      string `json:"metadata_md"`
}
