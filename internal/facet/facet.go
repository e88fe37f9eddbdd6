// Package facet derives the currently visible subset of a case's edited
// sections from free-text search and relevance facets. Filtering is
// display-only: it never mutates the section map and must never feed the
// reconciliation engine, which operates on unfiltered, position-true data.
package facet

import (
	"strings"

	"insightstream/api/internal/casefile"
)

// Query describes an active filter. An empty Text matches everything; a nil
// or empty Relevance set leaves relevance unfiltered.
type Query struct {
	Text      string
	Relevance []string
}

// active reports whether the query constrains relevance at all.
func (q Query) activeRelevance() map[string]bool {
	if len(q.Relevance) == 0 {
		return nil
	}
	set := make(map[string]bool, len(q.Relevance))
	for _, level := range q.Relevance {
		set[strings.ToLower(level)] = true
	}
	return set
}

// Visible reports whether one finding passes the query: findings without
// relevance metadata always pass the facet check, and the text match is a
// case-insensitive substring test over the finding's full serialized
// content.
func Visible(f casefile.Finding, q Query) bool {
	if set := q.activeRelevance(); set != nil {
		if relevance := f.Relevance(); relevance != "" && !set[strings.ToLower(relevance)] {
			return false
		}
	}
	text := strings.TrimSpace(q.Text)
	if text == "" {
		return true
	}
	return strings.Contains(strings.ToLower(f.Content()), strings.ToLower(text))
}

// VisiblePositions returns, per section, the true positions of the findings
// that pass the query. Sections with no visible findings are omitted
// entirely. Callers needing to mutate must address these positions, not the
// filtered ordering.
func VisiblePositions(sections casefile.SectionMap, q Query) map[string][]int {
	result := make(map[string][]int)
	for name, findings := range sections {
		var positions []int
		for i, finding := range findings {
			if Visible(finding, q) {
				positions = append(positions, i)
			}
		}
		if len(positions) > 0 {
			result[name] = positions
		}
	}
	return result
}

// Apply materializes the filtered view as a fresh section map. The input is
// never modified.
func Apply(sections casefile.SectionMap, q Query) casefile.SectionMap {
	result := casefile.SectionMap{}
	for name, positions := range VisiblePositions(sections, q) {
		findings := make([]casefile.Finding, 0, len(positions))
		for _, position := range positions {
			findings = append(findings, sections[name][position])
		}
		result[name] = findings
	}
	return result
}
