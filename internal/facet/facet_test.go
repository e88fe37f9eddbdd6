package facet

import (
	"testing"

	"insightstream/api/internal/casefile"
)

func testSections() casefile.SectionMap {
	return casefile.SectionMap{
		"red_flags": {
			casefile.NewStructured(map[string]any{"description": "Missed suicide screening", "relevance": "high"}),
			casefile.NewStructured(map[string]any{"description": "Late progress note", "relevance": "low"}),
			casefile.NewPlain("Unsigned consent form"),
		},
		"timeline": {
			casefile.NewPlain("2024-01-02 intake evaluation"),
		},
	}
}

func TestRelevanceFacet(t *testing.T) {
	sections := testSections()
	q := Query{Relevance: []string{"high"}}

	filtered := Apply(sections, q)
	flags := filtered["red_flags"]
	if len(flags) != 2 {
		t.Fatalf("expected 2 visible red_flags, got %d", len(flags))
	}
	for _, f := range flags {
		if f.Relevance() == "low" {
			t.Error("low-relevance finding leaked through high facet")
		}
	}
	// Findings without relevance metadata always pass the facet.
	if flags[1].Narrative() != "Unsigned consent form" {
		t.Errorf("plain finding should remain visible, got %q", flags[1].Narrative())
	}
	// Timeline has no relevance metadata at all and stays intact.
	if len(filtered["timeline"]) != 1 {
		t.Error("timeline should be unaffected by relevance facet")
	}
}

func TestQueryTextMatch(t *testing.T) {
	sections := testSections()

	filtered := Apply(sections, Query{Text: "SUICIDE"})
	if len(filtered) != 1 {
		t.Fatalf("expected only red_flags to survive, got %v", filtered.SectionNames())
	}
	if len(filtered["red_flags"]) != 1 {
		t.Fatalf("expected one match, got %d", len(filtered["red_flags"]))
	}
}

func TestEmptySectionsOmitted(t *testing.T) {
	sections := testSections()
	filtered := Apply(sections, Query{Text: "no such phrase anywhere"})
	if len(filtered) != 0 {
		t.Errorf("expected empty result, got sections %v", filtered.SectionNames())
	}
	for name := range filtered {
		t.Errorf("section %q present as empty key", name)
	}
}

func TestFilteringNeverMutatesInput(t *testing.T) {
	sections := testSections()
	before := sections.TotalFindings()
	Apply(sections, Query{Text: "intake", Relevance: []string{"high"}})
	if sections.TotalFindings() != before {
		t.Error("filtering mutated the edited sections")
	}
}

func TestVisiblePositionsAreTruePositions(t *testing.T) {
	sections := testSections()
	positions := VisiblePositions(sections, Query{Relevance: []string{"low"}})
	// Position 0 is high relevance and filtered out; 1 and 2 remain at their
	// true array positions.
	got := positions["red_flags"]
	if len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("red_flags positions = %v, want [1 2]", got)
	}
}

func TestStructuredContentSearchSpansAllFields(t *testing.T) {
	sections := casefile.SectionMap{
		"contradictions": {
			casefile.NewStructured(map[string]any{
				"description": "Conflicting dosage",
				"category":    "medication",
			}),
		},
	}
	filtered := Apply(sections, Query{Text: "medication"})
	if len(filtered["contradictions"]) != 1 {
		t.Error("query should match any structured field value")
	}
}
