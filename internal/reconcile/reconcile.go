// Package reconcile classifies every finding position of a case against the
// machine-original baseline. It is a pure derived view: recomputed from the
// current section maps on every read and never stored.
package reconcile

import (
	"insightstream/api/internal/casefile"
)

// Status is the change classification of a single position.
type Status string

const (
	StatusUnchanged Status = "unchanged"
	StatusEdited    Status = "edited"
	StatusRemoved   Status = "removed"
	StatusAdded     Status = "added"
)

// Entry is one classified position in the merged original/edited walk.
// OriginalIndex is -1 for added entries, EditedIndex is -1 for removed ones.
type Entry struct {
	Status        Status `json:"status"`
	OriginalIndex int    `json:"originalIndex"`
	EditedIndex   int    `json:"editedIndex"`
}

// Metrics are the rollup counts across one section or a whole case.
// EnhancementRate is the fraction of baseline findings that were edited,
// removed, or supplemented by additions; zero when the baseline is empty.
type Metrics struct {
	TotalOriginal   int     `json:"totalOriginal"`
	UnchangedCount  int     `json:"unchangedCount"`
	EditedCount     int     `json:"editedCount"`
	RemovedCount    int     `json:"removedCount"`
	AddedCount      int     `json:"addedCount"`
	EnhancementRate float64 `json:"enhancementRate"`
}

// ClassifySection walks the original and edited arrays of one section and
// classifies every position. The walk anchors on structural equality: when
// the items at the two cursors differ, an original item that reappears later
// in the edited array means the edited cursor holds an insertion, an edited
// item that reappears later in the original means the original cursor holds
// a removal, and no match either way means an in-place edit. With no
// cross-position matches this degrades to a plain positional comparison.
func ClassifySection(original, edited []casefile.Finding) []Entry {
	entries := make([]Entry, 0, max(len(original), len(edited)))
	i, j := 0, 0
	for i < len(original) && j < len(edited) {
		if original[i].Equal(edited[j]) {
			entries = append(entries, Entry{Status: StatusUnchanged, OriginalIndex: i, EditedIndex: j})
			i++
			j++
			continue
		}
		switch {
		case containsFrom(original, i+1, edited[j]):
			// The edited cursor matches a later baseline item, so the
			// current baseline item was removed.
			entries = append(entries, Entry{Status: StatusRemoved, OriginalIndex: i, EditedIndex: -1})
			i++
		case containsFrom(edited, j+1, original[i]):
			entries = append(entries, Entry{Status: StatusAdded, OriginalIndex: -1, EditedIndex: j})
			j++
		default:
			entries = append(entries, Entry{Status: StatusEdited, OriginalIndex: i, EditedIndex: j})
			i++
			j++
		}
	}
	for ; i < len(original); i++ {
		entries = append(entries, Entry{Status: StatusRemoved, OriginalIndex: i, EditedIndex: -1})
	}
	for ; j < len(edited); j++ {
		entries = append(entries, Entry{Status: StatusAdded, OriginalIndex: -1, EditedIndex: j})
	}
	return entries
}

// Classify classifies every section of the case. Sections present only in
// the edited map are excluded; a baseline section missing from the edited
// map is classified against an empty edited array (all removed).
func Classify(original, edited casefile.SectionMap) map[string][]Entry {
	result := make(map[string][]Entry, len(original))
	for name, baseline := range original {
		result[name] = ClassifySection(baseline, edited[name])
	}
	return result
}

// Statuses flattens the entries of one section to their status sequence.
func Statuses(entries []Entry) []Status {
	statuses := make([]Status, len(entries))
	for i, entry := range entries {
		statuses[i] = entry.Status
	}
	return statuses
}

// SummarizeSection computes rollup metrics for one section.
func SummarizeSection(original, edited []casefile.Finding) Metrics {
	return tally(ClassifySection(original, edited), len(original))
}

// Summarize computes case-level rollup metrics across all sections.
func Summarize(original, edited casefile.SectionMap) Metrics {
	var m Metrics
	for name, baseline := range original {
		section := tally(ClassifySection(baseline, edited[name]), len(baseline))
		m.TotalOriginal += section.TotalOriginal
		m.UnchangedCount += section.UnchangedCount
		m.EditedCount += section.EditedCount
		m.RemovedCount += section.RemovedCount
		m.AddedCount += section.AddedCount
	}
	m.EnhancementRate = rate(m)
	return m
}

func tally(entries []Entry, totalOriginal int) Metrics {
	m := Metrics{TotalOriginal: totalOriginal}
	for _, entry := range entries {
		switch entry.Status {
		case StatusUnchanged:
			m.UnchangedCount++
		case StatusEdited:
			m.EditedCount++
		case StatusRemoved:
			m.RemovedCount++
		case StatusAdded:
			m.AddedCount++
		}
	}
	m.EnhancementRate = rate(m)
	return m
}

func rate(m Metrics) float64 {
	if m.TotalOriginal == 0 {
		return 0
	}
	return float64(m.EditedCount+m.RemovedCount+m.AddedCount) / float64(m.TotalOriginal)
}

func containsFrom(findings []casefile.Finding, start int, target casefile.Finding) bool {
	for _, finding := range findings[start:] {
		if finding.Equal(target) {
			return true
		}
	}
	return false
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
