package casefile

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange reports a position-addressed mutation against a stale or
// invalid position. Callers should recompute positions from current state
// immediately before mutating rather than caching them.
var ErrOutOfRange = errors.New("finding position out of range")

// Case review lifecycle statuses.
const (
	StatusProcessing    = "processing"
	StatusPendingReview = "pending_review"
	StatusApproved      = "approved"
	StatusDelivered     = "delivered"
)

// ValidStatus reports whether status is a known lifecycle value.
func ValidStatus(status string) bool {
	switch status {
	case StatusProcessing, StatusPendingReview, StatusApproved, StatusDelivered:
		return true
	}
	return false
}

// recordIDFields are the recognized identifier field names on a source
// record, checked in order.
var recordIDFields = []string{"record_id", "id", "document_id", "doc_id", "source_id"}

// SourceRecord is an opaque source document field map, immutable once
// loaded.
type SourceRecord map[string]any

// ID returns the record's identifier from the first recognized identifier
// field, or "".
func (r SourceRecord) ID() string {
	for _, name := range recordIDFields {
		switch value := r[name].(type) {
		case string:
			if value != "" {
				return value
			}
		case float64:
			return fmt.Sprintf("%v", value)
		}
	}
	return ""
}

// Case is the in-memory working copy of a loaded case. Original is the
// immutable machine baseline; Edited and Comments are the reviewer's working
// state and the only collections the mutation operations touch.
type Case struct {
	ID            string          `json:"id"`
	CustomerName  string          `json:"customer_name"`
	CustomerEmail string          `json:"customer_email"`
	Pipeline      string          `json:"pipeline"`
	RecordsCount  int             `json:"records_count"`
	Status        string          `json:"status"`
	Original      SectionMap      `json:"analysis"`
	Edited        SectionMap      `json:"edits"`
	Comments      AnnotationStore `json:"comments"`
	SourceRecords []SourceRecord  `json:"original_records"`
	UploadedAt    time.Time       `json:"uploaded_at"`
	AnalyzedAt    *time.Time      `json:"analyzed_at,omitempty"`
	LastEdited    *time.Time      `json:"last_edited,omitempty"`
}

// EnsureWorkingState initializes the mutable collections: Edited defaults to
// a deep copy of Original on first load, Comments to an empty store.
func (c *Case) EnsureWorkingState() {
	if len(c.Edited) == 0 {
		c.Edited = c.Original.Clone()
	}
	if c.Comments == nil {
		c.Comments = AnnotationStore{}
	}
}

// UpdateFinding replaces the finding at position in the edited section.
// Comments are untouched.
func (c *Case) UpdateFinding(section string, position int, value Finding) error {
	findings := c.Edited[section]
	if position < 0 || position >= len(findings) {
		return fmt.Errorf("update %s[%d]: %w", section, position, ErrOutOfRange)
	}
	findings[position] = value
	return nil
}

// RemoveFinding deletes the finding at position, shifting subsequent
// positions down by one. Comments past the removed position are re-keyed in
// the same operation; skipping that would silently attach them to the wrong
// findings.
func (c *Case) RemoveFinding(section string, position int) error {
	findings := c.Edited[section]
	if position < 0 || position >= len(findings) {
		return fmt.Errorf("remove %s[%d]: %w", section, position, ErrOutOfRange)
	}
	c.Edited[section] = append(findings[:position], findings[position+1:]...)
	c.Comments.Reindex(section, position)
	return nil
}

// AddFinding appends a finding to the end of the edited section. Appending
// never disturbs existing positions, so no comment re-keying is needed.
func (c *Case) AddFinding(section string, value Finding) {
	c.Edited[section] = append(c.Edited[section], value)
}

// SetComment sets or clears (empty text) the comment at position.
func (c *Case) SetComment(section string, position int, text string) error {
	if position < 0 || position >= len(c.Edited[section]) {
		return fmt.Errorf("comment %s[%d]: %w", section, position, ErrOutOfRange)
	}
	if c.Comments == nil {
		c.Comments = AnnotationStore{}
	}
	c.Comments.Set(section, position, text)
	return nil
}

// Comment returns the comment at position, or "".
func (c *Case) Comment(section string, position int) string {
	return c.Comments.Get(section, position)
}

// Clone returns a deep copy of the case.
func (c *Case) Clone() *Case {
	cloned := *c
	cloned.Original = c.Original.Clone()
	cloned.Edited = c.Edited.Clone()
	cloned.Comments = c.Comments.Clone()
	cloned.SourceRecords = make([]SourceRecord, len(c.SourceRecords))
	for i, record := range c.SourceRecords {
		cloned.SourceRecords[i] = SourceRecord(cloneMap(record))
	}
	return &cloned
}
