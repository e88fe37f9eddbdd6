package review

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"insightstream/api/internal/casefile"
	"insightstream/api/internal/export"
	"insightstream/api/internal/facet"
	"insightstream/api/internal/search"
	"insightstream/api/internal/store"
)

type HTTPServer struct {
	service    *Service
	corsOrigin string
}

func NewHTTPServer(service *Service, corsOrigin string) *HTTPServer {
	return &HTTPServer{service: service, corsOrigin: corsOrigin}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(http.HandlerFunc(s.handle))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"database": map[string]any{"status": "ok"},
		}
		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["database"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}
		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/search" {
		s.handleSearch(w, r)
		return
	}

	if r.URL.Path == "/api/cases" {
		switch r.Method {
		case http.MethodGet:
			s.handleListCases(w, r)
		case http.MethodPost:
			s.handleIngest(w, r)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return
	}

	if parts := splitPath(r.URL.Path); len(parts) >= 3 && parts[0] == "api" && parts[1] == "cases" {
		s.handleCase(w, r, parts[2], parts[3:])
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

// handleCase routes everything under /api/cases/{id}.
func (s *HTTPServer) handleCase(w http.ResponseWriter, r *http.Request, caseID string, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
			return
		}
		cs, err := s.service.Load(r.Context(), caseID)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, cs)
		return
	}

	switch rest[0] {
	case "view":
		if r.Method == http.MethodGet && len(rest) == 1 {
			s.handleView(w, r, caseID)
			return
		}
	case "reconciliation":
		if r.Method == http.MethodGet && len(rest) == 1 {
			resp, err := s.service.Reconciliation(r.Context(), caseID)
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, resp)
			return
		}
	case "findings":
		s.handleFindings(w, r, caseID, rest[1:])
		return
	case "comments":
		if r.Method == http.MethodPut && len(rest) == 3 {
			s.handleSetComment(w, r, caseID, rest[1], rest[2])
			return
		}
	case "citations":
		if r.Method == http.MethodGet && len(rest) == 3 {
			s.handleCitations(w, r, caseID, rest[1], rest[2])
			return
		}
	case "save":
		if r.Method == http.MethodPost && len(rest) == 1 {
			s.handleSave(w, r, caseID)
			return
		}
	case "status":
		if r.Method == http.MethodPut && len(rest) == 1 {
			s.handleUpdateStatus(w, r, caseID)
			return
		}
	case "export":
		if r.Method == http.MethodPost && len(rest) == 1 {
			s.handleExport(w, r, caseID)
			return
		}
	case "history":
		if r.Method == http.MethodGet && len(rest) == 1 {
			s.handleHistory(w, r, caseID)
			return
		}
	case "snapshots":
		if r.Method == http.MethodGet && len(rest) == 2 {
			snapshot, err := s.service.Snapshot(r.Context(), caseID, rest[1])
			if err != nil {
				s.respondError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, snapshot)
			return
		}
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleListCases(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.List(r.Context())
	if err != nil {
		s.respondError(w, err)
		return
	}
	if items == nil {
		items = []store.CaseSummary{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cases": items})
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	var body IngestRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	cs, err := s.service.Ingest(r.Context(), body)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cs)
}

func (s *HTTPServer) handleView(w http.ResponseWriter, r *http.Request, caseID string) {
	q := facet.Query{Text: strings.TrimSpace(r.URL.Query().Get("q"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("relevance")); raw != "" {
		for _, level := range strings.Split(raw, ",") {
			if level = strings.TrimSpace(level); level != "" {
				q.Relevance = append(q.Relevance, level)
			}
		}
	}
	resp, err := s.service.View(r.Context(), caseID, q)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleFindings(w http.ResponseWriter, r *http.Request, caseID string, rest []string) {
	// POST /api/cases/{id}/findings/{section} appends a finding.
	if r.Method == http.MethodPost && len(rest) == 1 {
		var value casefile.Finding
		if err := decodeBody(r, &value); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		position, err := s.service.AddFinding(r.Context(), caseID, rest[0], value)
		if err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"section": rest[0], "position": position})
		return
	}

	if len(rest) != 2 {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}
	position, ok := parsePosition(w, rest[1])
	if !ok {
		return
	}

	switch r.Method {
	case http.MethodPut:
		var value casefile.Finding
		if err := decodeBody(r, &value); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return
		}
		if err := s.service.UpdateFinding(r.Context(), caseID, rest[0], position, value); err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		if err := s.service.RemoveFinding(r.Context(), caseID, rest[0], position); err != nil {
			s.respondError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleSetComment(w http.ResponseWriter, r *http.Request, caseID, section, rawPosition string) {
	position, ok := parsePosition(w, rawPosition)
	if !ok {
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.SetComment(r.Context(), caseID, section, position, body.Text); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleCitations(w http.ResponseWriter, r *http.Request, caseID, section, rawPosition string) {
	position, ok := parsePosition(w, rawPosition)
	if !ok {
		return
	}
	resp, err := s.service.Citations(r.Context(), caseID, section, position)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleSave(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		Author  string `json:"author"`
		Message string `json:"message"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	cs, err := s.service.Save(r.Context(), caseID, body.Author, body.Message)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "lastEdited": cs.LastEdited})
}

func (s *HTTPServer) handleUpdateStatus(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		Status string `json:"status"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	if err := s.service.UpdateStatus(r.Context(), caseID, body.Status); err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": body.Status})
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request, caseID string) {
	var body struct {
		Format          string `json:"format"`
		IncludeComments bool   `json:"includeComments"`
		IncludeRemoved  bool   `json:"includeRemoved"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	format := export.Format(body.Format)
	if format == "" {
		format = export.FormatPDF
	}

	result, err := s.service.Export(r.Context(), caseID, export.Request{
		Format:          format,
		IncludeComments: body.IncludeComments,
		IncludeRemoved:  body.IncludeRemoved,
	})
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			writeError(w, http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
			return
		}
		s.respondError(w, err)
		return
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", result.Filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
}

func (s *HTTPServer) handleHistory(w http.ResponseWriter, r *http.Request, caseID string) {
	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		limit = parsed
	}
	entries, err := s.service.History(r.Context(), caseID, limit)
	if err != nil {
		s.respondError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := search.Query{
		Text:            strings.TrimSpace(r.URL.Query().Get("q")),
		FilterCaseID:    strings.TrimSpace(r.URL.Query().Get("caseId")),
		FilterRelevance: strings.TrimSpace(r.URL.Query().Get("relevance")),
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		q.Limit = parsed
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("offset")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
			return
		}
		q.Offset = parsed
	}
	writeJSON(w, http.StatusOK, s.service.Search(r.Context(), q))
}

func (s *HTTPServer) respondError(w http.ResponseWriter, err error) {
	status, code, message, details := mapError(err)
	writeError(w, status, code, message, details)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = randomRequestID()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func randomRequestID() string {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func parsePosition(w http.ResponseWriter, raw string) (int, bool) {
	position, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "position must be an integer", nil)
		return 0, false
	}
	return position, true
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Details
	}
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound, "NOT_FOUND", "Not found", nil
	}
	if errors.Is(err, casefile.ErrOutOfRange) {
		return http.StatusUnprocessableEntity, "OUT_OF_RANGE", "Finding position out of range", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
