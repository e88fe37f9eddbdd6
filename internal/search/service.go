package search

import (
	"context"
	"log"

	"insightstream/api/internal/casefile"
)

// Service is the facade that tries Meilisearch first and falls back to the
// Postgres scan.
type Service struct {
	meili    *Meili
	fallback *PgFallback
}

// NewService creates a search service. meili may be nil when Meilisearch is
// not configured.
func NewService(meili *Meili, fallback *PgFallback) *Service {
	return &Service{meili: meili, fallback: fallback}
}

// Search tries Meilisearch if healthy, otherwise falls back to Postgres.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.meili != nil && s.meili.Healthy() {
		results, total, err := s.meili.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		log.Printf("search: meilisearch error, falling back to postgres: %v", err)
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		log.Printf("search: fallback error: %v", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexCase re-indexes a case's working findings (fire-and-forget).
func (s *Service) IndexCase(cs *casefile.Case) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	records := RecordsForCase(cs)
	caseID := cs.ID
	go func() {
		if err := s.meili.IndexFindings(caseID, records); err != nil {
			log.Printf("search: index case %s: %v", caseID, err)
		}
	}()
}

// DeleteCase removes a case's findings from the index (fire-and-forget).
func (s *Service) DeleteCase(caseID string) {
	if s.meili == nil || !s.meili.Healthy() {
		return
	}
	go func() {
		if err := s.meili.DeleteCase(caseID); err != nil {
			log.Printf("search: delete case %s: %v", caseID, err)
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
