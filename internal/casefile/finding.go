// Package casefile holds the working-copy model for a case under expert
// review: findings grouped into named sections, the machine-original and
// reviewer-edited versions of those sections, reviewer comments addressed by
// position, and the original source records kept for provenance.
package casefile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Severity levels recognized on structured findings.
const (
	SeverityCritical = "critical"
	SeverityModerate = "moderate"
	SeverityMinor    = "minor"
)

// Relevance levels recognized on structured findings.
const (
	RelevanceHigh   = "high"
	RelevanceMedium = "medium"
	RelevanceLow    = "low"
)

// narrativeFields are checked in order when picking the display text of a
// structured finding. Names come from the extraction pipeline's output
// schemas.
var narrativeFields = []string{
	"description",
	"issue",
	"narrative",
	"event_description",
	"text",
	"summary",
}

// Finding is one extracted observation belonging to a section. A plain
// finding is a bare narrative string; a structured finding is a field map
// with a narrative field plus optional category/severity/relevance/citations
// metadata. Unrecognized structured shapes are carried as-is and rendered
// field by field.
type Finding struct {
	Text   string
	Fields map[string]any
}

// NewPlain wraps a narrative string as a plain finding.
func NewPlain(text string) Finding {
	return Finding{Text: text}
}

// NewStructured wraps a field map as a structured finding.
func NewStructured(fields map[string]any) Finding {
	if fields == nil {
		fields = map[string]any{}
	}
	return Finding{Fields: fields}
}

// IsStructured reports whether the finding carries a field map.
func (f Finding) IsStructured() bool {
	return f.Fields != nil
}

// MarshalJSON emits plain findings as JSON strings and structured findings
// as JSON objects, matching the stored case format.
func (f Finding) MarshalJSON() ([]byte, error) {
	if f.Fields != nil {
		return json.Marshal(f.Fields)
	}
	return json.Marshal(f.Text)
}

// UnmarshalJSON accepts either wire variant.
func (f *Finding) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		f.Text = text
		f.Fields = nil
		return nil
	}
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("decode finding: %w", err)
	}
	f.Text = ""
	f.Fields = fields
	return nil
}

// Narrative returns the display text of the finding. For structured findings
// it picks the first recognized narrative field; shapes with no recognized
// narrative degrade to a generic field-by-field rendering.
func (f Finding) Narrative() string {
	if f.Fields == nil {
		return f.Text
	}
	for _, name := range narrativeFields {
		if value, ok := f.Fields[name].(string); ok && strings.TrimSpace(value) != "" {
			return value
		}
	}
	return f.genericRender()
}

func (f Finding) genericRender() string {
	keys := make([]string, 0, len(f.Fields))
	for key := range f.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s: %v", key, f.Fields[key]))
	}
	return strings.Join(parts, " | ")
}

// Category returns the category field of a structured finding, or "".
func (f Finding) Category() string {
	return f.stringField("category")
}

// Severity returns the severity field of a structured finding, or "".
func (f Finding) Severity() string {
	return f.stringField("severity")
}

// Relevance returns the relevance field of a structured finding, or "".
// Plain findings carry no relevance metadata.
func (f Finding) Relevance() string {
	return f.stringField("relevance")
}

func (f Finding) stringField(name string) string {
	if f.Fields == nil {
		return ""
	}
	value, _ := f.Fields[name].(string)
	return value
}

// Citations returns the explicit source-record citation list of a structured
// finding. Both the "citations" and the legacy "records" field names are
// recognized.
func (f Finding) Citations() []string {
	if f.Fields == nil {
		return nil
	}
	for _, name := range []string{"citations", "records"} {
		raw, ok := f.Fields[name]
		if !ok {
			continue
		}
		switch values := raw.(type) {
		case []string:
			return append([]string(nil), values...)
		case []any:
			ids := make([]string, 0, len(values))
			for _, value := range values {
				if id, ok := value.(string); ok && id != "" {
					ids = append(ids, id)
				}
			}
			return ids
		}
	}
	return nil
}

// Content returns the full serialized content of the finding for substring
// search: the narrative for plain findings, all field values concatenated for
// structured ones.
func (f Finding) Content() string {
	if f.Fields == nil {
		return f.Text
	}
	keys := make([]string, 0, len(f.Fields))
	for key := range f.Fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		parts = append(parts, flattenValue(f.Fields[key]))
	}
	return strings.Join(parts, " ")
}

func flattenValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			parts = append(parts, flattenValue(item))
		}
		return strings.Join(parts, " ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

// Equal reports structural equality of two findings over their normalized
// JSON form.
func (f Finding) Equal(other Finding) bool {
	return bytes.Equal(f.normalized(), other.normalized())
}

func (f Finding) normalized() []byte {
	payload, err := json.Marshal(f)
	if err != nil {
		return nil
	}
	return payload
}

// Clone returns a deep copy of the finding.
func (f Finding) Clone() Finding {
	if f.Fields == nil {
		return Finding{Text: f.Text}
	}
	return Finding{Fields: cloneMap(f.Fields)}
}

func cloneMap(fields map[string]any) map[string]any {
	cloned := make(map[string]any, len(fields))
	for key, value := range fields {
		cloned[key] = cloneValue(value)
	}
	return cloned
}

func cloneValue(value any) any {
	switch v := value.(type) {
	case map[string]any:
		return cloneMap(v)
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = cloneValue(item)
		}
		return items
	case []string:
		return append([]string(nil), v...)
	default:
		return v
	}
}
