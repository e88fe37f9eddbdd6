package export

import (
	"fmt"
	"strings"
	"time"

	"insightstream/api/internal/casefile"
	"insightstream/api/internal/reconcile"
)

// BuildTemplateData assembles the report model from a case. The change
// markers come from the same classification the interactive views use, so
// the report never disagrees with what the reviewer saw on screen.
func BuildTemplateData(cs *casefile.Case, req Request) TemplateData {
	data := TemplateData{
		CaseID:       cs.ID,
		CustomerName: cs.CustomerName,
		Pipeline:     cs.Pipeline,
		Status:       cs.Status,
		GeneratedAt:  time.Now(),
		Metrics:      reconcile.Summarize(cs.Original, cs.Edited),
	}

	classified := reconcile.Classify(cs.Original, cs.Edited)
	for _, section := range sectionNames(cs) {
		ts := TemplateSection{Title: strings.ReplaceAll(section, "_", " ")}
		for _, entry := range classified[section] {
			var f casefile.Finding
			switch entry.Status {
			case reconcile.StatusRemoved:
				if !req.IncludeRemoved {
					continue
				}
				f = cs.Original[section][entry.OriginalIndex]
			default:
				f = cs.Edited[section][entry.EditedIndex]
			}

			tf := TemplateFinding{
				Text:      f.Narrative(),
				Status:    string(entry.Status),
				Relevance: f.Relevance(),
				Citations: f.Citations(),
			}
			if req.IncludeComments && entry.EditedIndex >= 0 {
				tf.Comment = cs.Comment(section, entry.EditedIndex)
			}
			ts.Findings = append(ts.Findings, tf)
		}
		// Edited-only sections never enter the classification; their
		// findings are all reviewer additions.
		if _, known := cs.Original[section]; !known {
			for i, finding := range cs.Edited[section] {
				tf := TemplateFinding{
					Text:      finding.Narrative(),
					Status:    string(reconcile.StatusAdded),
					Relevance: finding.Relevance(),
					Citations: finding.Citations(),
				}
				if req.IncludeComments {
					tf.Comment = cs.Comment(section, i)
				}
				ts.Findings = append(ts.Findings, tf)
			}
		}
		if len(ts.Findings) > 0 {
			data.Sections = append(data.Sections, ts)
		}
	}
	return data
}

// Export renders the case into the requested format.
func Export(cs *casefile.Case, req Request) (*Result, error) {
	html, err := RenderReportHTML(BuildTemplateData(cs, req))
	if err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}

	title := reportTitle(cs)
	switch req.Format {
	case FormatHTML:
		return &Result{
			Data:     []byte(html),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(html, title)
	case FormatDOCX:
		return exportDOCX(html, title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func reportTitle(cs *casefile.Case) string {
	if cs.CustomerName != "" {
		return fmt.Sprintf("%s %s", cs.CustomerName, cs.ID)
	}
	return cs.ID
}

func sectionNames(cs *casefile.Case) []string {
	names := cs.Edited.SectionNames()
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		seen[name] = true
	}
	for _, name := range cs.Original.SectionNames() {
		if !seen[name] {
			names = append(names, name)
		}
	}
	return names
}
