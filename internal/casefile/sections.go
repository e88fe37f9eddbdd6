package casefile

import "sort"

// SectionMap maps a section name to its ordered findings. Array order is the
// canonical basis for position-addressed identity.
type SectionMap map[string][]Finding

// Clone returns a deep copy of the section map.
func (m SectionMap) Clone() SectionMap {
	if m == nil {
		return SectionMap{}
	}
	cloned := make(SectionMap, len(m))
	for name, findings := range m {
		items := make([]Finding, len(findings))
		for i, finding := range findings {
			items[i] = finding.Clone()
		}
		cloned[name] = items
	}
	return cloned
}

// SectionNames returns the section names in sorted order for deterministic
// iteration.
func (m SectionMap) SectionNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TotalFindings counts findings across all sections.
func (m SectionMap) TotalFindings() int {
	total := 0
	for _, findings := range m {
		total += len(findings)
	}
	return total
}
