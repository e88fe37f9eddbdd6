package review

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"sync"
	"testing"

	"insightstream/api/internal/casefile"
	"insightstream/api/internal/reconcile"
	"insightstream/api/internal/store"
)

type stubStore struct {
	mu      sync.Mutex
	cases   map[string]*casefile.Case
	saved   map[string]int
	failGet error
	block   chan struct{}
	entered chan struct{}
}

func newStubStore() *stubStore {
	return &stubStore{
		cases: make(map[string]*casefile.Case),
		saved: make(map[string]int),
	}
}

func (s *stubStore) CreateCase(_ context.Context, c *casefile.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cases[c.ID] = c.Clone()
	return nil
}

func (s *stubStore) GetCase(_ context.Context, id string) (*casefile.Case, error) {
	if s.failGet != nil {
		return nil, s.failGet
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	clone := c.Clone()
	clone.EnsureWorkingState()
	return clone, nil
}

func (s *stubStore) ListCases(_ context.Context) ([]store.CaseSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := make([]store.CaseSummary, 0, len(s.cases))
	for _, c := range s.cases {
		items = append(items, store.CaseSummary{ID: c.ID, CustomerName: c.CustomerName, Status: c.Status})
	}
	return items, nil
}

func (s *stubStore) SaveReview(_ context.Context, id string, edited casefile.SectionMap, comments casefile.AnnotationStore) error {
	if s.entered != nil {
		close(s.entered)
		s.entered = nil
	}
	if s.block != nil {
		<-s.block
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Edited = edited.Clone()
	c.Comments = comments.Clone()
	s.saved[id]++
	return nil
}

func (s *stubStore) UpdateStatus(_ context.Context, id, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return store.ErrNotFound
	}
	c.Status = status
	return nil
}

func (s *stubStore) Ping(context.Context) error { return nil }

func seedCase(t *testing.T, st *stubStore) string {
	t.Helper()
	cs := &casefile.Case{
		ID:     "case-1",
		Status: casefile.StatusPendingReview,
		Original: casefile.SectionMap{
			"red_flags": {
				casefile.NewPlain("Missed screening"),
				casefile.NewPlain("Unsigned consent form"),
			},
		},
		SourceRecords: []casefile.SourceRecord{
			{"record_id": "AB-2024-001", "provider": "Dr. Chen"},
		},
	}
	cs.EnsureWorkingState()
	if err := st.CreateCase(context.Background(), cs); err != nil {
		t.Fatalf("seed case: %v", err)
	}
	return cs.ID
}

func TestLoadReturnsWorkingCopy(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	first, err := svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	second, err := svc.Load(ctx, id)
	if err != nil {
		t.Fatalf("second Load() error = %v", err)
	}
	if first != second {
		t.Error("repeated loads should return the same working copy")
	}
}

func TestLoadUnknownCase(t *testing.T) {
	svc := New(newStubStore())
	_, err := svc.Load(context.Background(), "missing")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" || domainErr.Status != http.StatusNotFound {
		t.Fatalf("err = %v", err)
	}
}

func TestLoadTransportFailure(t *testing.T) {
	st := newStubStore()
	st.failGet = errors.New("connection refused")
	svc := New(st)

	_, err := svc.Load(context.Background(), "case-1")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "TRANSPORT_FAILURE" || domainErr.Status != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestMutationsStayInMemoryUntilSave(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	refined := casefile.NewStructured(map[string]any{"description": "Missed suicide screening", "relevance": "high"})
	if err := svc.UpdateFinding(ctx, id, "red_flags", 0, refined); err != nil {
		t.Fatalf("UpdateFinding() error = %v", err)
	}

	// The store still holds the unedited state.
	stored, _ := st.GetCase(ctx, id)
	if stored.Edited["red_flags"][0].Narrative() != "Missed screening" {
		t.Error("edit leaked to the store before save")
	}

	if _, err := svc.Save(ctx, id, "Dr. Chen", "refine screening finding"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	stored, _ = st.GetCase(ctx, id)
	if stored.Edited["red_flags"][0].Narrative() != "Missed suicide screening" {
		t.Error("save did not persist the edit")
	}
	if st.saved[id] != 1 {
		t.Errorf("saved %d times", st.saved[id])
	}
}

func TestSaveTwiceIsIdempotent(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	if err := svc.SetComment(ctx, id, "red_flags", 1, "follow up"); err != nil {
		t.Fatalf("SetComment() error = %v", err)
	}
	if _, err := svc.Save(ctx, id, "", ""); err != nil {
		t.Fatalf("first Save() error = %v", err)
	}
	first, _ := st.GetCase(ctx, id)

	if _, err := svc.Save(ctx, id, "", ""); err != nil {
		t.Fatalf("second Save() error = %v", err)
	}
	second, _ := st.GetCase(ctx, id)

	if !reflect.DeepEqual(first.Edited, second.Edited) || !reflect.DeepEqual(first.Comments, second.Comments) {
		t.Error("saving twice with no intervening edits changed the persisted state")
	}
	if st.saved[id] != 2 {
		t.Errorf("saved %d times", st.saved[id])
	}
}

func TestRemovalAndAdditionScenario(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	if _, err := svc.AddFinding(ctx, id, "red_flags", casefile.NewPlain("new issue")); err != nil {
		t.Fatalf("AddFinding() error = %v", err)
	}
	if err := svc.RemoveFinding(ctx, id, "red_flags", 0); err != nil {
		t.Fatalf("RemoveFinding() error = %v", err)
	}

	resp, err := svc.Reconciliation(ctx, id)
	if err != nil {
		t.Fatalf("Reconciliation() error = %v", err)
	}
	want := []reconcile.Status{reconcile.StatusRemoved, reconcile.StatusUnchanged, reconcile.StatusAdded}
	entries := resp.Sections["red_flags"]
	if len(entries) != len(want) {
		t.Fatalf("got %d entries, want %d", len(entries), len(want))
	}
	for i, entry := range entries {
		if entry.Status != want[i] {
			t.Errorf("entry %d status = %q, want %q", i, entry.Status, want[i])
		}
	}
	if resp.Metrics.EnhancementRate != 1.0 {
		t.Errorf("enhancementRate = %v, want 1.0", resp.Metrics.EnhancementRate)
	}
}

func TestRemoveFindingReindexesComments(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	if err := svc.SetComment(ctx, id, "red_flags", 1, "keep an eye on this"); err != nil {
		t.Fatalf("SetComment() error = %v", err)
	}
	if err := svc.RemoveFinding(ctx, id, "red_flags", 0); err != nil {
		t.Fatalf("RemoveFinding() error = %v", err)
	}

	cs, _ := svc.Load(ctx, id)
	if got := cs.Comment("red_flags", 0); got != "keep an eye on this" {
		t.Errorf("comment after reindex = %q", got)
	}
}

func TestMutationOutOfRange(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	err := svc.UpdateFinding(ctx, id, "red_flags", 99, casefile.NewPlain("nope"))
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "OUT_OF_RANGE" {
		t.Fatalf("err = %v", err)
	}

	err = svc.UpdateFinding(ctx, id, "no_such_section", 0, casefile.NewPlain("nope"))
	if !errors.As(err, &domainErr) || domainErr.Code != "NOT_FOUND" {
		t.Fatalf("unknown section err = %v", err)
	}
}

func TestConcurrentSaveRejected(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	st.block = make(chan struct{})
	st.entered = make(chan struct{})
	entered := st.entered
	svc := New(st)
	ctx := context.Background()

	if _, err := svc.Load(ctx, id); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := svc.Save(ctx, id, "", "")
		done <- err
	}()

	// Wait until the first save is inside the store call, then attempt a
	// second save for the same case.
	<-entered
	_, conflictErr := svc.Save(ctx, id, "", "")
	close(st.block)
	if err := <-done; err != nil {
		t.Fatalf("first save failed: %v", err)
	}

	var domainErr *DomainError
	if !errors.As(conflictErr, &domainErr) || domainErr.Code != "SAVE_IN_PROGRESS" {
		t.Fatalf("expected SAVE_IN_PROGRESS, got %v", conflictErr)
	}
	if domainErr.Status != http.StatusConflict {
		t.Errorf("status = %d", domainErr.Status)
	}
}

func TestIngestSeedsWorkingState(t *testing.T) {
	st := newStubStore()
	svc := New(st)

	cs, err := svc.Ingest(context.Background(), IngestRequest{
		CustomerName: "Jordan Hale",
		Pipeline:     "standard",
		Analysis: casefile.SectionMap{
			"timeline": {casefile.NewPlain("2024-01-02 intake evaluation")},
		},
		SourceRecords: []casefile.SourceRecord{{"record_id": "AB-2024-001"}},
	})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if cs.Status != casefile.StatusPendingReview {
		t.Errorf("status = %q", cs.Status)
	}
	if cs.RecordsCount != 1 {
		t.Errorf("records count = %d", cs.RecordsCount)
	}
	if cs.Edited.TotalFindings() != 1 {
		t.Error("working copy not seeded from analysis")
	}
	if cs.AnalyzedAt == nil {
		t.Error("analyzedAt should be stamped when analysis is present")
	}
}

func TestIngestWithoutAnalysisStaysProcessing(t *testing.T) {
	svc := New(newStubStore())
	cs, err := svc.Ingest(context.Background(), IngestRequest{CustomerName: "Sam Reyes"})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if cs.Status != casefile.StatusProcessing {
		t.Errorf("status = %q", cs.Status)
	}
	if cs.AnalyzedAt != nil {
		t.Error("analyzedAt should be empty without analysis")
	}
}

func TestUpdateStatusValidation(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	err := svc.UpdateStatus(ctx, id, "archived")
	var domainErr *DomainError
	if !errors.As(err, &domainErr) || domainErr.Code != "VALIDATION_ERROR" {
		t.Fatalf("err = %v", err)
	}

	if err := svc.UpdateStatus(ctx, id, casefile.StatusApproved); err != nil {
		t.Fatalf("UpdateStatus() error = %v", err)
	}
	cs, _ := svc.Load(ctx, id)
	if cs.Status != casefile.StatusApproved {
		t.Errorf("working copy status = %q", cs.Status)
	}
}

func TestCitations(t *testing.T) {
	st := newStubStore()
	id := seedCase(t, st)
	svc := New(st)
	ctx := context.Background()

	if err := svc.UpdateFinding(ctx, id, "red_flags", 0, casefile.NewPlain("Gap noted [AB-2024-001][ZZ-999-1].")); err != nil {
		t.Fatalf("UpdateFinding() error = %v", err)
	}

	resp, err := svc.Citations(ctx, id, "red_flags", 0)
	if err != nil {
		t.Fatalf("Citations() error = %v", err)
	}
	if resp.Text != "Gap noted ." {
		t.Errorf("cleaned text = %q", resp.Text)
	}
	if len(resp.Resolutions) != 2 {
		t.Fatalf("got %d resolutions", len(resp.Resolutions))
	}
	if !resp.Resolutions[0].Found || resp.Resolutions[1].Found {
		t.Errorf("resolutions = %+v", resp.Resolutions)
	}

	if _, err := svc.Citations(ctx, id, "red_flags", 42); err == nil {
		t.Error("expected out of range error")
	}
}
