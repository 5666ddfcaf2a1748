package domain

import (
	"fmt"
	"strings"
)

type Severity string

const (
	SeverityCritical Severity = "CRITICAL"
	SeverityWarning  Severity = "WARNING"
	SeverityInfo     Severity = "INFO"
)

// Rank orders severities for sorting; higher is more severe.
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 3
	case SeverityWarning:
		return 2
	case SeverityInfo:
		return 1
	default:
		return 0
	}
}

// ParseSeverity normalizes graph-sourced severity labels, including the
// Chinese labels used by the knowledge base. Unknown labels map to
// WARNING rather than INFO, since these rules gate medication safety.
func ParseSeverity(raw string) Severity {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "CRITICAL", "HIGH", "禁用", "禁忌", "绝对禁忌", "严重":
		return SeverityCritical
	case "WARNING", "MEDIUM", "MODERATE", "慎用", "警告", "谨慎", "相对禁忌":
		return SeverityWarning
	case "INFO", "LOW", "提示", "注意", "监测":
		return SeverityInfo
	default:
		return SeverityWarning
	}
}

type Predicate string

const (
	PredicateForbiddenFor      Predicate = "FORBIDDEN_FOR"
	PredicateContraindicatedIf Predicate = "CONTRAINDICATED_IF"
	PredicateDosageAdjustIf    Predicate = "DOSAGE_ADJUST_IF"
)

type Operator string

const (
	OperatorLess      Operator = "<"
	OperatorLessEq    Operator = "<="
	OperatorGreater   Operator = ">"
	OperatorGreaterEq Operator = ">="
	OperatorEqual     Operator = "="
	OperatorBetween   Operator = "BETWEEN"
)

// StructuredFact is one graph-sourced clinical rule. Disease facts
// (FORBIDDEN_FOR) leave Operator empty; metric facts
// (CONTRAINDICATED_IF) carry Operator and Threshold, with ThresholdMax
// populated only for BETWEEN.
type StructuredFact struct {
	Drug         string    `json:"drug"`
	Predicate    Predicate `json:"predicate"`
	Object       string    `json:"object"`
	Operator     Operator  `json:"operator,omitempty"`
	Threshold    float64   `json:"threshold,omitempty"`
	ThresholdMax float64   `json:"threshold_max,omitempty"`
	Unit         string    `json:"unit,omitempty"`
	Severity     Severity  `json:"severity"`
}

// Key deduplicates facts by (drug, predicate, condition).
func (f StructuredFact) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s|%g|%g", f.Drug, f.Predicate, f.Object, f.Operator, f.Threshold, f.ThresholdMax)
}

// ConditionText renders the triggering condition for logs and context.
func (f StructuredFact) ConditionText() string {
	switch f.Operator {
	case OperatorBetween:
		return fmt.Sprintf("%s %g-%g %s", f.Object, f.Threshold, f.ThresholdMax, f.Unit)
	case "":
		return f.Object
	default:
		return strings.TrimSpace(fmt.Sprintf("%s %s %g %s", f.Object, f.Operator, f.Threshold, f.Unit))
	}
}

// GraphRecord is one raw row returned by a graph query.
type GraphRecord map[string]any

// GraphStatement is one parametrized graph mutation produced by the
// dataset loader.
type GraphStatement struct {
	Cypher string
	Params map[string]any
}

// MetricAliases maps a canonical metric name to the spellings that may
// appear in queries, profiles, and graph objects.
type MetricAliases map[string][]string

// Canonical resolves name to its canonical metric, or returns the
// trimmed input when no alias matches.
func (a MetricAliases) Canonical(name string) string {
	trimmed := strings.TrimSpace(name)
	lowered := strings.ToLower(trimmed)
	for canonical, aliases := range a {
		if strings.EqualFold(canonical, trimmed) {
			return canonical
		}
		for _, alias := range aliases {
			if strings.ToLower(alias) == lowered {
				return canonical
			}
		}
	}
	return trimmed
}
