package graphload

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Clinical metrics the rules usually reference. Known ones carry their
// Chinese full name and unit; anything else gets a bare node.
var metricDefinitions = []struct {
	Name     string
	FullName string
	Unit     string
}{
	{"eGFR", "肾小球滤过率", "mL/min"},
	{"CrCl", "肌酐清除率", "mL/min"},
	{"ALT", "丙氨酸氨基转移酶", ""},
	{"AST", "天冬氨酸氨基转移酶", ""},
	{"BMI", "体重指数", ""},
}

const defaultCategory = "未分类"

// Build turns the dataset into ordered graph mutations: categories and
// metrics first, then each drug with its brands, diseases and rules.
// Callers run EnsureSchema before applying them.
func Build(entries []DrugEntry) []domain.GraphStatement {
	var out []domain.GraphStatement
	out = append(out, categoryStatements(entries)...)
	out = append(out, metricStatements(entries)...)
	for _, entry := range entries {
		out = append(out, drugStatements(entry)...)
	}
	return out
}

func categoryStatements(entries []DrugEntry) []domain.GraphStatement {
	set := make(map[string]struct{})
	for _, entry := range entries {
		set[categoryOrDefault(entry.Category)] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for name := range set {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]domain.GraphStatement, 0, len(names))
	for _, name := range names {
		out = append(out, domain.GraphStatement{
			Cypher: "MERGE (c:Category {name: $name})",
			Params: map[string]any{"name": name},
		})
	}
	return out
}

func metricStatements(entries []DrugEntry) []domain.GraphStatement {
	known := make(map[string]struct{}, len(metricDefinitions))
	out := make([]domain.GraphStatement, 0, len(metricDefinitions))
	for _, def := range metricDefinitions {
		known[def.Name] = struct{}{}
		out = append(out, domain.GraphStatement{
			Cypher: "MERGE (m:Metric {name: $name, full_name: $full_name, unit: $unit})",
			Params: map[string]any{"name": def.Name, "full_name": def.FullName, "unit": def.Unit},
		})
	}

	extra := make(map[string]struct{})
	for _, entry := range entries {
		for _, rule := range entry.MetricConstraints {
			if _, ok := known[rule.Metric]; !ok {
				extra[rule.Metric] = struct{}{}
			}
		}
	}
	names := make([]string, 0, len(extra))
	for name := range extra {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		out = append(out, domain.GraphStatement{
			Cypher: "MERGE (m:Metric {name: $name})",
			Params: map[string]any{"name": name},
		})
	}
	return out
}

func drugStatements(entry DrugEntry) []domain.GraphStatement {
	out := []domain.GraphStatement{drugNodeStatement(entry.Drug)}

	for _, brand := range entry.Brands {
		if strings.TrimSpace(brand) == "" {
			continue
		}
		out = append(out,
			domain.GraphStatement{
				Cypher: "MERGE (b:Brand {name: $name})",
				Params: map[string]any{"name": brand},
			},
			domain.GraphStatement{
				Cypher: "MATCH (d:Drug {id: $drug_id}), (b:Brand {name: $name}) MERGE (b)-[:IS_BRAND_OF]->(d)",
				Params: map[string]any{"drug_id": entry.Drug.ID, "name": brand},
			},
		)
	}

	out = append(out, domain.GraphStatement{
		Cypher: "MATCH (d:Drug {id: $drug_id}), (c:Category {name: $name}) MERGE (d)-[:BELONGS_TO]->(c)",
		Params: map[string]any{"drug_id": entry.Drug.ID, "name": categoryOrDefault(entry.Category)},
	})

	for _, disease := range entry.Treats {
		out = append(out, diseaseStatements(entry.Drug.ID, disease.Name, "适应症", "MERGE (d)-[:TREATS]->(dis)")...)
	}
	for _, disease := range entry.ForbiddenDiseases {
		out = append(out, diseaseStatements(entry.Drug.ID, disease.Name, "禁忌", "MERGE (d)-[:FORBIDDEN_FOR {severity: '禁忌'}]->(dis)")...)
	}
	for _, rule := range entry.MetricConstraints {
		out = append(out, ruleStatement(entry.Drug.ID, rule))
	}
	return out
}

// drugNodeStatement merges on the full property set, the same identity
// the import has always used. Reloading changed properties therefore
// needs a wipe first.
func drugNodeStatement(drug DrugRecord) domain.GraphStatement {
	props := []string{"id: $id", "name: $name", "en_name: $en_name"}
	params := map[string]any{"id": drug.ID, "name": drug.Name, "en_name": drug.EnName}

	optional := []struct{ key, value string }{
		{"max_daily_dose", drug.Dosage.MaxDailyDose},
		{"starting_dose", drug.Dosage.StartingDose},
		{"timing", drug.Dosage.Timing},
		{"route", drug.Dosage.Route},
	}
	for _, prop := range optional {
		if prop.value == "" {
			continue
		}
		props = append(props, fmt.Sprintf("%s: $%s", prop.key, prop.key))
		params[prop.key] = prop.value
	}

	return domain.GraphStatement{
		Cypher: fmt.Sprintf("MERGE (d:Drug {%s})", strings.Join(props, ", ")),
		Params: params,
	}
}

func diseaseStatements(drugID, disease, diseaseType, mergeRel string) []domain.GraphStatement {
	if strings.TrimSpace(disease) == "" {
		return nil
	}
	return []domain.GraphStatement{
		{
			Cypher: "MERGE (dis:Disease {name: $name, type: $type})",
			Params: map[string]any{"name": disease, "type": diseaseType},
		},
		{
			Cypher: "MATCH (d:Drug {id: $drug_id}), (dis:Disease {name: $name, type: $type}) " + mergeRel,
			Params: map[string]any{"drug_id": drugID, "name": disease, "type": diseaseType},
		},
	}
}

func ruleStatement(drugID string, rule MetricConstraint) domain.GraphStatement {
	relType := string(domain.PredicateContraindicatedIf)
	defaultSeverity := domain.SeverityWarning
	if rule.Kind == ruleKindDosageAdjust {
		relType = string(domain.PredicateDosageAdjustIf)
		defaultSeverity = domain.SeverityInfo
	}

	props := []string{"operator: $operator", "severity: $severity"}
	params := map[string]any{
		"drug_id":  drugID,
		"metric":   rule.Metric,
		"operator": rule.Operator,
		"severity": severityOrDefault(rule.Severity, defaultSeverity),
	}
	if rule.Value != nil {
		props = append(props, "value: $value")
		params["value"] = *rule.Value
	}
	if rule.ValueMin != nil && rule.ValueMax != nil {
		props = append(props, "value_min: $value_min", "value_max: $value_max")
		params["value_min"] = *rule.ValueMin
		params["value_max"] = *rule.ValueMax
	}
	if rule.Unit != "" {
		props = append(props, "unit: $unit")
		params["unit"] = rule.Unit
	}

	cypher := fmt.Sprintf(
		"MATCH (d:Drug {id: $drug_id}), (m:Metric {name: $metric}) MERGE (d)-[:%s {%s}]->(m)",
		relType,
		strings.Join(props, ", "),
	)
	return domain.GraphStatement{Cypher: cypher, Params: params}
}

func severityOrDefault(severity string, fallback domain.Severity) string {
	trimmed := strings.ToUpper(strings.TrimSpace(severity))
	if trimmed == "" {
		return string(fallback)
	}
	return trimmed
}
