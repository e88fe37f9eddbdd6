package export

import (
	"strings"
	"testing"

	"insightstream/api/internal/casefile"
)

func reviewedCase() *casefile.Case {
	cs := &casefile.Case{
		ID:           "case-2024-07",
		CustomerName: "Jordan Hale",
		Pipeline:     "standard",
		Status:       casefile.StatusPendingReview,
		Original: casefile.SectionMap{
			"red_flags": {
				casefile.NewPlain("Missed screening"),
				casefile.NewPlain("Stale entry"),
				casefile.NewPlain("Unsigned consent form"),
			},
		},
	}
	cs.Edited = casefile.SectionMap{
		"red_flags": {
			casefile.NewStructured(map[string]any{
				"description": "Missed suicide screening at intake",
				"relevance":   "high",
				"citations":   []any{"AB-2024-001"},
			}),
			casefile.NewPlain("Unsigned consent form"),
			casefile.NewPlain("Reviewer-added gap in medication log"),
		},
	}
	cs.Comments = casefile.AnnotationStore{}
	cs.Comments.Set("red_flags", 0, "verified against intake note")
	return cs
}

func TestBuildTemplateData(t *testing.T) {
	data := BuildTemplateData(reviewedCase(), Request{IncludeComments: true, IncludeRemoved: true})

	if data.CaseID != "case-2024-07" || data.CustomerName != "Jordan Hale" {
		t.Fatalf("header data = %+v", data)
	}
	if data.Metrics.TotalOriginal != 3 {
		t.Errorf("TotalOriginal = %d", data.Metrics.TotalOriginal)
	}
	if len(data.Sections) != 1 {
		t.Fatalf("got %d sections", len(data.Sections))
	}

	findings := data.Sections[0].Findings
	statuses := make([]string, len(findings))
	for i, f := range findings {
		statuses[i] = f.Status
	}
	// One refined finding, one removal from the baseline, one addition.
	var edited, removed, added int
	for _, s := range statuses {
		switch s {
		case "edited":
			edited++
		case "removed":
			removed++
		case "added":
			added++
		}
	}
	if edited != 1 || removed != 1 || added != 1 {
		t.Errorf("statuses = %v", statuses)
	}

	for _, f := range findings {
		if f.Status == "edited" {
			if f.Comment != "verified against intake note" {
				t.Errorf("comment = %q", f.Comment)
			}
			if len(f.Citations) != 1 || f.Citations[0] != "AB-2024-001" {
				t.Errorf("citations = %v", f.Citations)
			}
		}
		if f.Status == "removed" && f.Comment != "" {
			t.Error("removed findings carry no comments")
		}
	}
}

func TestBuildTemplateDataExcludesRemoved(t *testing.T) {
	data := BuildTemplateData(reviewedCase(), Request{})
	for _, section := range data.Sections {
		for _, f := range section.Findings {
			if f.Status == "removed" {
				t.Error("removed finding rendered without IncludeRemoved")
			}
		}
	}
}

func TestRenderReportHTML(t *testing.T) {
	html, err := RenderReportHTML(BuildTemplateData(reviewedCase(), Request{IncludeComments: true}))
	if err != nil {
		t.Fatalf("RenderReportHTML() error = %v", err)
	}
	for _, want := range []string{
		"Case Review Report",
		"Jordan Hale",
		"Missed suicide screening at intake",
		"verified against intake note",
		"red flags",
	} {
		if !strings.Contains(html, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestExportHTML(t *testing.T) {
	result, err := Export(reviewedCase(), Request{Format: FormatHTML})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if result.MimeType != "text/html; charset=utf-8" {
		t.Errorf("mime = %q", result.MimeType)
	}
	if result.Filename != "Jordan-Hale-case-2024-07.html" {
		t.Errorf("filename = %q", result.Filename)
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Jordan Hale case-1", "Jordan-Hale-case-1"},
		{"///", "report"},
		{strings.Repeat("a", 80), strings.Repeat("a", 50)},
	}
	for _, tt := range tests {
		if got := sanitizeFilename(tt.in); got != tt.want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPercentEncodeForDataURL(t *testing.T) {
	got := percentEncodeForDataURL("a b<c>")
	if got != "a%20b%3Cc%3E" {
		t.Errorf("encoded = %q", got)
	}
}
