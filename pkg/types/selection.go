// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// SelectionEntry is the manifest record for one label.
type SelectionEntry struct {
	KeepIndexes   []int    `json:"keep_indexes"`
	KeepIDs       []string `json:"keep_ids"`
	SelectedCount int      `json:"selected_count"`

	// UnresolvedCount counts keep references that matched no item in the
	// backing result set.
	UnresolvedCount int `json:"unresolved_count"`

	// QueryFile points at the result set this entry was resolved against.
	QueryFile string `json:"query_file"`

	// Request copies the backing result set's request parameters.
	Request RequestParams `json:"request"`
}

// SelectionManifest maps label to its selection entry.
type SelectionManifest map[string]SelectionEntry

// RateState is the persisted state shared by every process using the same
// rate-state file.
type RateState struct {
	LastRequestTS    float64 `json:"last_request_ts,omitempty"`
	LastRequestUTC   string  `json:"last_request_utc,omitempty"`
	CooldownUntilTS  float64 `json:"cooldown_until_ts,omitempty"`
	CooldownUntilUTC string  `json:"cooldown_until_utc,omitempty"`
}
