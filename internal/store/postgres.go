package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"insightstream/api/internal/casefile"
)

// ErrNotFound reports a case id that does not resolve in the store.
var ErrNotFound = errors.New("case not found")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// CreateCase inserts a freshly ingested case. The edited sections are
// expected to already be a deep copy of the analysis; the store persists
// whatever working state the caller hands it.
func (s *PostgresStore) CreateCase(ctx context.Context, c *casefile.Case) error {
	analysis, edits, comments, records, err := marshalCasePayloads(c)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO cases (id, customer_name, customer_email, pipeline, records_count, status,
			analysis, edits, comments, original_records, uploaded_at, analyzed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, c.ID, c.CustomerName, c.CustomerEmail, c.Pipeline, c.RecordsCount, c.Status,
		analysis, edits, comments, records, c.UploadedAt, c.AnalyzedAt)
	if err != nil {
		return fmt.Errorf("insert case: %w", err)
	}
	return nil
}

// GetCase loads the full case by id.
func (s *PostgresStore) GetCase(ctx context.Context, id string) (*casefile.Case, error) {
	const query = `
		SELECT id, customer_name, customer_email, pipeline, records_count, status,
			analysis, edits, comments, original_records, uploaded_at, analyzed_at, last_edited
		FROM cases
		WHERE id = $1
	`
	var (
		c        casefile.Case
		analysis []byte
		edits    []byte
		comments []byte
		records  []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.CustomerName, &c.CustomerEmail, &c.Pipeline, &c.RecordsCount, &c.Status,
		&analysis, &edits, &comments, &records, &c.UploadedAt, &c.AnalyzedAt, &c.LastEdited,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load case %s: %w", id, err)
	}
	if err := unmarshalCasePayloads(&c, analysis, edits, comments, records); err != nil {
		return nil, err
	}
	c.EnsureWorkingState()
	return &c, nil
}

// ListCases returns summaries of all cases, newest upload first.
func (s *PostgresStore) ListCases(ctx context.Context) ([]CaseSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, customer_email, pipeline, status, records_count,
			uploaded_at, analyzed_at, last_edited
		FROM cases
		ORDER BY uploaded_at DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}
	defer rows.Close()

	items := make([]CaseSummary, 0)
	for rows.Next() {
		var item CaseSummary
		if err := rows.Scan(&item.ID, &item.CustomerName, &item.CustomerEmail, &item.Pipeline,
			&item.Status, &item.RecordsCount, &item.UploadedAt, &item.AnalyzedAt, &item.LastEdited); err != nil {
			return nil, fmt.Errorf("scan case summary: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SaveReview overwrites the edited sections and comments of a stored case in
// a single statement: the save is a whole-object replace of those two
// fields, never a merge, so retrying an identical save is idempotent.
func (s *PostgresStore) SaveReview(ctx context.Context, id string, edited casefile.SectionMap, comments casefile.AnnotationStore) error {
	edits, err := json.Marshal(edited)
	if err != nil {
		return fmt.Errorf("marshal edits: %w", err)
	}
	commentPayload, err := json.Marshal(comments)
	if err != nil {
		return fmt.Errorf("marshal comments: %w", err)
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases SET edits = $2, comments = $3, last_edited = NOW()
		WHERE id = $1
	`, id, edits, commentPayload)
	if err != nil {
		return fmt.Errorf("save review %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("save review %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return nil
}

// UpdateStatus advances the case lifecycle and stamps the transition time.
func (s *PostgresStore) UpdateStatus(ctx context.Context, id, status string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE cases SET status = $2, status_changed_at = NOW()
		WHERE id = $1
	`, id, status)
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update status %s: %w", id, err)
	}
	if affected == 0 {
		return fmt.Errorf("case %s: %w", id, ErrNotFound)
	}
	return nil
}

// SearchCases is the fallback full-text path used when Meilisearch is down:
// a case-insensitive substring scan over the stored section payloads.
func (s *PostgresStore) SearchCases(ctx context.Context, query string, limit int) ([]CaseSearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, customer_name, status
		FROM cases
		WHERE analysis::text ILIKE '%' || $1 || '%'
			OR edits::text ILIKE '%' || $1 || '%'
		ORDER BY uploaded_at DESC
		LIMIT $2
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search cases: %w", err)
	}
	defer rows.Close()

	hits := make([]CaseSearchHit, 0)
	for rows.Next() {
		var hit CaseSearchHit
		if err := rows.Scan(&hit.CaseID, &hit.CustomerName, &hit.Status); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}

func marshalCasePayloads(c *casefile.Case) (analysis, edits, comments, records []byte, err error) {
	if analysis, err = json.Marshal(c.Original); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal analysis: %w", err)
	}
	if edits, err = json.Marshal(c.Edited); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal edits: %w", err)
	}
	if comments, err = json.Marshal(c.Comments); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal comments: %w", err)
	}
	if records, err = json.Marshal(c.SourceRecords); err != nil {
		return nil, nil, nil, nil, fmt.Errorf("marshal source records: %w", err)
	}
	return analysis, edits, comments, records, nil
}

func unmarshalCasePayloads(c *casefile.Case, analysis, edits, comments, records []byte) error {
	if len(analysis) > 0 {
		if err := json.Unmarshal(analysis, &c.Original); err != nil {
			return fmt.Errorf("decode analysis: %w", err)
		}
	}
	if len(edits) > 0 {
		if err := json.Unmarshal(edits, &c.Edited); err != nil {
			return fmt.Errorf("decode edits: %w", err)
		}
	}
	if len(comments) > 0 {
		if err := json.Unmarshal(comments, &c.Comments); err != nil {
			return fmt.Errorf("decode comments: %w", err)
		}
	}
	if len(records) > 0 {
		if err := json.Unmarshal(records, &c.SourceRecords); err != nil {
			return fmt.Errorf("decode source records: %w", err)
		}
	}
	return nil
}
