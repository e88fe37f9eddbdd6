package search

import (
	"context"
	"errors"
	"testing"

	"insightstream/api/internal/casefile"
	"insightstream/api/internal/store"
)

func TestRecordsForCase(t *testing.T) {
	cs := &casefile.Case{
		ID: "case-9",
		Original: casefile.SectionMap{
			"red_flags": {
				casefile.NewStructured(map[string]any{"description": "Missed screening", "relevance": "high"}),
				casefile.NewPlain("Unsigned consent form"),
			},
		},
	}
	cs.EnsureWorkingState()

	records := RecordsForCase(cs)
	if len(records) != 2 {
		t.Fatalf("got %d records, want 2", len(records))
	}
	if records[0].ID != "case-9_red_flags_0" {
		t.Errorf("record id = %q", records[0].ID)
	}
	if records[0].Relevance != "high" || records[0].Position != 0 {
		t.Errorf("record[0] = %+v", records[0])
	}
	if records[1].Position != 1 {
		t.Errorf("record[1] position = %d", records[1].Position)
	}
}

type stubScanner struct {
	hits   []store.CaseSearchHit
	gotCtx context.Context
}

func (s *stubScanner) SearchCases(ctx context.Context, _ string, _ int) ([]store.CaseSearchHit, error) {
	s.gotCtx = ctx
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.hits, nil
}

func TestPgFallbackFiltersByCase(t *testing.T) {
	fb := NewPgFallback(&stubScanner{hits: []store.CaseSearchHit{
		{CaseID: "a", CustomerName: "Jordan Hale", Status: "pending_review"},
		{CaseID: "b", CustomerName: "Sam Reyes", Status: "approved"},
	}})

	results, total, err := fb.Search(context.Background(), Query{Text: "screening", FilterCaseID: "b"})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if total != 1 || len(results) != 1 || results[0].CaseID != "b" {
		t.Errorf("results = %+v, total = %d", results, total)
	}
}

func TestPgFallbackEmptyQuery(t *testing.T) {
	fb := NewPgFallback(&stubScanner{})
	results, total, err := fb.Search(context.Background(), Query{Text: "   "})
	if err != nil || results != nil || total != 0 {
		t.Errorf("blank query should short-circuit: %v %v %d", results, err, total)
	}
}

func TestPgFallbackThreadsContext(t *testing.T) {
	scanner := &stubScanner{}
	fb := NewPgFallback(scanner)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, _, err := fb.Search(ctx, Query{Text: "screening"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if scanner.gotCtx != ctx {
		t.Error("request context was not passed to the store")
	}
}
