package search

import (
	"context"
	"fmt"
	"strings"

	"insightstream/api/internal/store"
)

// CaseScanner is the slice of the store the fallback needs.
type CaseScanner interface {
	SearchCases(ctx context.Context, query string, limit int) ([]store.CaseSearchHit, error)
}

// PgFallback implements Searcher against Postgres when Meilisearch is down.
// It only resolves matches to the case level; Section and Position stay
// zero-valued in its results.
type PgFallback struct {
	scanner CaseScanner
}

func NewPgFallback(scanner CaseScanner) *PgFallback {
	return &PgFallback{scanner: scanner}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFallback) Healthy() bool {
	return true
}

func (p *PgFallback) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	hits, err := p.scanner.SearchCases(ctx, q.Text, q.Limit)
	if err != nil {
		return nil, 0, fmt.Errorf("fallback search: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		if q.FilterCaseID != "" && hit.CaseID != q.FilterCaseID {
			continue
		}
		results = append(results, Result{
			CaseID:  hit.CaseID,
			Snippet: fmt.Sprintf("%s (%s)", hit.CustomerName, hit.Status),
		})
	}
	return results, len(results), nil
}
