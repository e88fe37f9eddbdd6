package search

import (
	"context"
	"fmt"

	"insightstream/api/internal/casefile"
)

// FindingRecord is the data we index per finding. The ID is stable across
// re-indexing so saves overwrite rather than duplicate.
type FindingRecord struct {
	ID        string `json:"id"`
	CaseID    string `json:"caseId"`
	Section   string `json:"section"`
	Position  int    `json:"position"`
	Text      string `json:"text"`
	Category  string `json:"category"`
	Relevance string `json:"relevance"`
	Severity  string `json:"severity"`
}

// Result is a single search hit returned to the caller.
type Result struct {
	CaseID    string `json:"caseId"`
	Section   string `json:"section,omitempty"`
	Position  int    `json:"position"`
	Snippet   string `json:"snippet"`
	Relevance string `json:"relevance,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterCaseID    string
	FilterRelevance string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search. The context bounds the query so
// an abandoned request does not keep a backend call running.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// RecordsForCase flattens a case's working sections into indexable finding
// records. Positions are the true array positions of the edited sections.
func RecordsForCase(cs *casefile.Case) []FindingRecord {
	var records []FindingRecord
	for _, section := range cs.Edited.SectionNames() {
		for i, f := range cs.Edited[section] {
			records = append(records, FindingRecord{
				ID:        fmt.Sprintf("%s_%s_%d", cs.ID, section, i),
				CaseID:    cs.ID,
				Section:   section,
				Position:  i,
				Text:      f.Content(),
				Category:  f.Category(),
				Relevance: f.Relevance(),
				Severity:  f.Severity(),
			})
		}
	}
	return records
}
