// Package review implements the case review workflow: loading cases into a
// working copy, applying reviewer mutations in memory, and persisting them
// atomically on save.
package review

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"insightstream/api/internal/artifacts"
	"insightstream/api/internal/cache"
	"insightstream/api/internal/casefile"
	"insightstream/api/internal/citation"
	"insightstream/api/internal/export"
	"insightstream/api/internal/facet"
	"insightstream/api/internal/history"
	"insightstream/api/internal/reconcile"
	"insightstream/api/internal/search"
	"insightstream/api/internal/store"
	"insightstream/api/internal/util"
)

// CaseStore is the persistence surface the service depends on.
type CaseStore interface {
	CreateCase(ctx context.Context, c *casefile.Case) error
	GetCase(ctx context.Context, id string) (*casefile.Case, error)
	ListCases(ctx context.Context) ([]store.CaseSummary, error)
	SaveReview(ctx context.Context, id string, edited casefile.SectionMap, comments casefile.AnnotationStore) error
	UpdateStatus(ctx context.Context, id, status string) error
	Ping(ctx context.Context) error
}

// Service coordinates the working copies of loaded cases. All mutations are
// in-memory only until an explicit save; a crash between save points loses
// at most the unsaved edits.
type Service struct {
	store     CaseStore
	cache     *cache.CaseCache
	search    *search.Service
	vault     *history.Vault
	artifacts *artifacts.Store

	mu      sync.Mutex
	working map[string]*casefile.Case
	saving  map[string]bool
}

func New(caseStore CaseStore) *Service {
	return &Service{
		store:   caseStore,
		working: make(map[string]*casefile.Case),
		saving:  make(map[string]bool),
	}
}

// WithCache attaches the Redis read-through cache.
func (s *Service) WithCache(c *cache.CaseCache) *Service {
	s.cache = c
	return s
}

// WithSearch attaches the search facade.
func (s *Service) WithSearch(svc *search.Service) *Service {
	s.search = svc
	return s
}

// WithHistory attaches the per-case snapshot vault.
func (s *Service) WithHistory(v *history.Vault) *Service {
	s.vault = v
	return s
}

// WithArtifacts attaches report archiving.
func (s *Service) WithArtifacts(a *artifacts.Store) *Service {
	s.artifacts = a
	return s
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// IngestRequest carries a new case from the extraction pipeline.
type IngestRequest struct {
	CustomerName  string                  `json:"customerName"`
	CustomerEmail string                  `json:"customerEmail"`
	Pipeline      string                  `json:"pipeline"`
	Analysis      casefile.SectionMap     `json:"analysis"`
	SourceRecords []casefile.SourceRecord `json:"originalRecords"`
}

// Ingest registers a freshly analyzed case and seeds its working state.
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*casefile.Case, error) {
	now := time.Now().UTC()
	cs := &casefile.Case{
		ID:            util.NewCaseID(),
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		Pipeline:      req.Pipeline,
		RecordsCount:  len(req.SourceRecords),
		Status:        casefile.StatusProcessing,
		Original:      req.Analysis,
		SourceRecords: req.SourceRecords,
		UploadedAt:    now,
	}
	if cs.Original == nil {
		cs.Original = casefile.SectionMap{}
	}
	if len(cs.Original) > 0 {
		cs.Status = casefile.StatusPendingReview
		cs.AnalyzedAt = &now
	}
	cs.EnsureWorkingState()

	if err := s.store.CreateCase(ctx, cs); err != nil {
		return nil, transportError("create case", err)
	}

	if s.vault != nil {
		snapshot := history.Snapshot{Edits: cs.Edited, Comments: cs.Comments}
		if err := s.vault.EnsureCaseRepo(cs.ID, snapshot, "pipeline"); err != nil {
			log.Printf("review: init history for %s: %v", cs.ID, err)
		}
	}
	if s.search != nil {
		s.search.IndexCase(cs)
	}

	s.mu.Lock()
	s.working[cs.ID] = cs
	s.mu.Unlock()
	return cs, nil
}

// List returns case summaries for the dashboard.
func (s *Service) List(ctx context.Context) ([]store.CaseSummary, error) {
	items, err := s.store.ListCases(ctx)
	if err != nil {
		return nil, transportError("list cases", err)
	}
	return items, nil
}

// Load returns the working copy of a case, pulling it through the cache and
// the store on first access. Subsequent calls see in-memory edits.
func (s *Service) Load(ctx context.Context, id string) (*casefile.Case, error) {
	s.mu.Lock()
	if cs, ok := s.working[id]; ok {
		s.mu.Unlock()
		return cs, nil
	}
	s.mu.Unlock()

	if s.cache != nil {
		cs, err := s.cache.Get(ctx, id)
		if err == nil {
			return s.adopt(cs), nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			log.Printf("review: cache read for %s: %v", id, err)
		}
	}

	cs, err := s.store.GetCase(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Case not found", nil)
		}
		return nil, transportError("load case", err)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, cs); err != nil {
			log.Printf("review: cache write for %s: %v", id, err)
		}
	}
	return s.adopt(cs), nil
}

// adopt installs a loaded case as the working copy unless another request
// beat us to it.
func (s *Service) adopt(cs *casefile.Case) *casefile.Case {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.working[cs.ID]; ok {
		return existing
	}
	s.working[cs.ID] = cs
	return cs
}

// ViewResponse is the filtered display state of a case.
type ViewResponse struct {
	Sections  casefile.SectionMap `json:"sections"`
	Positions map[string][]int    `json:"positions"`
	Query     string              `json:"query,omitempty"`
}

// View returns the findings visible under the given filter, along with their
// true positions for mutation addressing.
func (s *Service) View(ctx context.Context, id string, q facet.Query) (ViewResponse, error) {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return ViewResponse{}, err
	}
	return ViewResponse{
		Sections:  facet.Apply(cs.Edited, q),
		Positions: facet.VisiblePositions(cs.Edited, q),
		Query:     q.Text,
	}, nil
}

// ReconciliationResponse pairs per-section classifications with the overall
// review metrics.
type ReconciliationResponse struct {
	Sections map[string][]reconcile.Entry `json:"sections"`
	Metrics  reconcile.Metrics            `json:"metrics"`
}

// Reconciliation classifies the full, unfiltered working copy against the
// original analysis.
func (s *Service) Reconciliation(ctx context.Context, id string) (ReconciliationResponse, error) {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return ReconciliationResponse{}, err
	}
	return ReconciliationResponse{
		Sections: reconcile.Classify(cs.Original, cs.Edited),
		Metrics:  reconcile.Summarize(cs.Original, cs.Edited),
	}, nil
}

// UpdateFinding replaces one finding in the working copy.
func (s *Service) UpdateFinding(ctx context.Context, id, section string, position int, value casefile.Finding) error {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := cs.Edited[section]; !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Section not found", map[string]any{"section": section})
	}
	return mapMutation(cs.UpdateFinding(section, position, value))
}

// RemoveFinding deletes one finding; comments past it are re-keyed.
func (s *Service) RemoveFinding(ctx context.Context, id, section string, position int) error {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	if _, ok := cs.Edited[section]; !ok {
		return domainError(http.StatusNotFound, "NOT_FOUND", "Section not found", map[string]any{"section": section})
	}
	return mapMutation(cs.RemoveFinding(section, position))
}

// AddFinding appends a reviewer finding to a section, creating the section
// if the reviewer opens a new one.
func (s *Service) AddFinding(ctx context.Context, id, section string, value casefile.Finding) (int, error) {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return 0, err
	}
	cs.AddFinding(section, value)
	return len(cs.Edited[section]) - 1, nil
}

// SetComment attaches, replaces, or clears (empty text) a positional comment.
func (s *Service) SetComment(ctx context.Context, id, section string, position int, text string) error {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return err
	}
	return mapMutation(cs.SetComment(section, position, text))
}

// CitationResponse is one finding's text with its resolved source records.
type CitationResponse struct {
	Text        string                `json:"text"`
	Resolutions []citation.Resolution `json:"resolutions"`
}

// Citations resolves a finding's record references against the case's
// source records.
func (s *Service) Citations(ctx context.Context, id, section string, position int) (CitationResponse, error) {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return CitationResponse{}, err
	}
	findings := cs.Edited[section]
	if position < 0 || position >= len(findings) {
		return CitationResponse{}, domainError(http.StatusUnprocessableEntity, "OUT_OF_RANGE", "Finding position out of range", nil)
	}
	text, resolutions := citation.ResolveFinding(findings[position], cs.SourceRecords)
	return CitationResponse{Text: text, Resolutions: resolutions}, nil
}

// Save persists the working copy as a whole-object replace of the stored
// edits and comments. Concurrent saves of the same case are rejected; the
// in-memory state is untouched when persistence fails.
func (s *Service) Save(ctx context.Context, id, author, message string) (*casefile.Case, error) {
	s.mu.Lock()
	if s.saving[id] {
		s.mu.Unlock()
		return nil, domainError(http.StatusConflict, "SAVE_IN_PROGRESS", "A save for this case is already running", nil)
	}
	s.saving[id] = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.saving, id)
		s.mu.Unlock()
	}()

	cs, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.store.SaveReview(ctx, id, cs.Edited, cs.Comments); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, domainError(http.StatusNotFound, "NOT_FOUND", "Case not found", nil)
		}
		return nil, transportError("save review", err)
	}

	now := time.Now().UTC()
	cs.LastEdited = &now

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Printf("review: cache invalidate for %s: %v", id, err)
		}
	}
	if s.vault != nil {
		if author == "" {
			author = "reviewer"
		}
		if message == "" {
			message = "Save review"
		}
		snapshot := history.Snapshot{Edits: cs.Edited, Comments: cs.Comments}
		if _, err := s.vault.CommitSnapshot(id, snapshot, author, message); err != nil {
			log.Printf("review: history commit for %s: %v", id, err)
		}
	}
	if s.search != nil {
		s.search.IndexCase(cs)
	}
	return cs, nil
}

// UpdateStatus advances the case lifecycle.
func (s *Service) UpdateStatus(ctx context.Context, id, status string) error {
	if !casefile.ValidStatus(status) {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "Unknown status", map[string]any{"status": status})
	}
	if err := s.store.UpdateStatus(ctx, id, status); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domainError(http.StatusNotFound, "NOT_FOUND", "Case not found", nil)
		}
		return transportError("update status", err)
	}

	s.mu.Lock()
	if cs, ok := s.working[id]; ok {
		cs.Status = status
	}
	s.mu.Unlock()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, id); err != nil {
			log.Printf("review: cache invalidate for %s: %v", id, err)
		}
	}
	return nil
}

// Export renders the case report and archives it when object storage is
// configured.
func (s *Service) Export(ctx context.Context, id string, req export.Request) (*export.Result, error) {
	cs, err := s.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	req.CaseID = id

	result, err := export.Export(cs, req)
	if err != nil {
		return nil, err
	}

	if s.artifacts != nil {
		if key, err := s.artifacts.PutReport(ctx, id, result.Filename, result.MimeType, result.Data); err != nil {
			log.Printf("review: archive report for %s: %v", id, err)
		} else if key != "" {
			log.Printf("review: archived report %s", key)
		}
	}
	return result, nil
}

// History returns the save log of a case.
func (s *Service) History(ctx context.Context, id string, limit int) ([]history.CommitInfo, error) {
	if s.vault == nil {
		return nil, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History vault not configured", nil)
	}
	if _, err := s.Load(ctx, id); err != nil {
		return nil, err
	}
	entries, err := s.vault.History(id, limit)
	if err != nil {
		return nil, transportError("read history", err)
	}
	return entries, nil
}

// Snapshot returns the review state at a historical save point.
func (s *Service) Snapshot(ctx context.Context, id, hash string) (history.Snapshot, error) {
	if s.vault == nil {
		return history.Snapshot{}, domainError(http.StatusServiceUnavailable, "HISTORY_UNAVAILABLE", "History vault not configured", nil)
	}
	if _, err := s.Load(ctx, id); err != nil {
		return history.Snapshot{}, err
	}
	snapshot, err := s.vault.GetSnapshot(id, hash)
	if err != nil {
		return history.Snapshot{}, transportError("read snapshot", err)
	}
	return snapshot, nil
}

// Search queries the findings index.
func (s *Service) Search(ctx context.Context, q search.Query) search.Response {
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}
	}
	return s.search.Search(ctx, q)
}

func mapMutation(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, casefile.ErrOutOfRange) {
		return domainError(http.StatusUnprocessableEntity, "OUT_OF_RANGE", "Finding position out of range", nil)
	}
	return err
}

func transportError(op string, err error) *DomainError {
	return domainError(http.StatusBadGateway, "TRANSPORT_FAILURE", "Storage unavailable", map[string]any{
		"op":    op,
		"cause": err.Error(),
	})
}
