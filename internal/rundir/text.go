// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package rundir

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	nonSlug      = regexp.MustCompile(`[^a-z0-9]+`)
	lookbackExpr = regexp.MustCompile(`^\s*(\d+)\s*([dwm])\s*$`)
)

const maxSlugLen = 80

// Slugify lowercases value, collapses every run of characters outside
// [a-z0-9] into "-", trims dashes and truncates to 80 characters. An empty
// result becomes fallback.
func Slugify(value, fallback string) string {
	slug := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(value), "-"), "-")
	if len(slug) > maxSlugLen {
		slug = slug[:maxSlugLen]
	}
	if slug == "" {
		return fallback
	}
	return slug
}

// SplitCSV splits a comma-separated list, dropping empty items.
func SplitCSV(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// ParseLookback parses "Nd", "Nw" or "Nm" (a month is 30 days).
func ParseLookback(raw string) (time.Duration, error) {
	m := lookbackExpr.FindStringSubmatch(raw)
	if m == nil {
		return 0, fmt.Errorf("invalid lookback %q (want Nd, Nw or Nm)", raw)
	}
	n, err := strconv.Atoi(m[1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("lookback must be positive, got %q", raw)
	}
	day := 24 * time.Hour
	switch m[2] {
	case "d":
		return time.Duration(n) * day, nil
	case "w":
		return time.Duration(n) * 7 * day, nil
	default:
		return time.Duration(n) * 30 * day, nil
	}
}
