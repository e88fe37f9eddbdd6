// Package citation extracts source-record identifiers embedded in finding
// text and resolves them against a case's original source records for
// provenance.
package citation

import (
	"regexp"
	"strings"

	"insightstream/api/internal/casefile"
)

// idPattern matches bracketed record identifiers: an uppercase letter prefix
// followed by hyphen-separated numeric groups, e.g. [AB-2024-003].
var idPattern = regexp.MustCompile(`\[([A-Z][A-Z0-9]*(?:-[0-9]+)+)\]`)

// Resolution is one identifier lookup result. Record is nil when the
// identifier did not match any source record; resolution is best-effort and
// partial results are valid.
type Resolution struct {
	ID     string                `json:"id"`
	Found  bool                  `json:"found"`
	Record casefile.SourceRecord `json:"record,omitempty"`
}

// Extract collects all non-overlapping bracketed identifiers in text in
// left-to-right order and returns the text with the bracket syntax stripped.
// Zero matches yields an empty list and the text unmodified.
func Extract(text string) (string, []string) {
	matches := idPattern.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return text, nil
	}
	ids := make([]string, len(matches))
	for i, match := range matches {
		ids[i] = match[1]
	}
	return idPattern.ReplaceAllString(text, ""), ids
}

// Resolve looks up each identifier against the source records by their
// recognized identifier field. Unmatched identifiers produce a not-found
// placeholder rather than failing the lookup.
func Resolve(ids []string, records []casefile.SourceRecord) []Resolution {
	resolutions := make([]Resolution, 0, len(ids))
	for _, id := range ids {
		resolution := Resolution{ID: id}
		for _, record := range records {
			if strings.EqualFold(record.ID(), id) {
				resolution.Found = true
				resolution.Record = record
				break
			}
		}
		resolutions = append(resolutions, resolution)
	}
	return resolutions
}

// ResolveFinding resolves the citations of one finding. Structured findings
// that carry an explicit citation list bypass text extraction; otherwise the
// identifiers are extracted from the narrative. The returned text is the
// cleaned display narrative.
func ResolveFinding(f casefile.Finding, records []casefile.SourceRecord) (string, []Resolution) {
	if explicit := f.Citations(); len(explicit) > 0 {
		return f.Narrative(), Resolve(explicit, records)
	}
	clean, ids := Extract(f.Narrative())
	return clean, Resolve(ids, records)
}
