package domain

import (
	"sort"
	"strings"
)

// DrugInfo aggregates what the graph knows about one drug: identity,
// classification, indications, and every rule attached to it. Dosage
// adjustments are informational and never feed risk warnings.
type DrugInfo struct {
	Name              string           `json:"name"`
	EnName            string           `json:"en_name,omitempty"`
	Category          string           `json:"category,omitempty"`
	Brands            []string         `json:"brands,omitempty"`
	Treats            []string         `json:"treats,omitempty"`
	Contraindications []StructuredFact `json:"contraindications,omitempty"`
	DosageAdjustments []StructuredFact `json:"dosage_adjustments,omitempty"`
	DosageInfo        string           `json:"dosage_info,omitempty"`
}

// DrugAliases maps a surface spelling, usually a brand name or an
// abbreviation, to the generic name the graph keys on.
type DrugAliases map[string]string

// Normalize resolves name to its generic form. Aliases match as
// substrings so 二甲双胍缓释片 still resolves through the 二甲 alias;
// longer aliases are tried first, which keeps 格列美脲 from being
// claimed by a shorter overlapping alias. Unknown names pass through
// trimmed.
func (a DrugAliases) Normalize(name string) string {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(a) == 0 {
		return trimmed
	}
	aliases := make([]string, 0, len(a))
	for alias := range a {
		aliases = append(aliases, alias)
	}
	sort.Slice(aliases, func(i, j int) bool {
		if len(aliases[i]) != len(aliases[j]) {
			return len(aliases[i]) > len(aliases[j])
		}
		return aliases[i] < aliases[j]
	})
	for _, alias := range aliases {
		if alias != "" && strings.Contains(trimmed, alias) {
			return a[alias]
		}
	}
	return trimmed
}
