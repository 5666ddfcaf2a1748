package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

// AssessUseCase evaluates a patient profile against the structured
// contraindication rules, independent of free-text retrieval.
type AssessUseCase struct {
	graph   ports.GraphStore
	aliases domain.MetricAliases
	drugs   domain.DrugAliases
}

func NewAssessUseCase(graph ports.GraphStore, aliases domain.MetricAliases, drugs domain.DrugAliases) *AssessUseCase {
	return &AssessUseCase{graph: graph, aliases: aliases, drugs: drugs}
}

// Assess checks every medication in the profile against its graph
// facts. A graph outage yields a limited report with an explanatory
// summary rather than an error.
func (uc *AssessUseCase) Assess(ctx context.Context, profile domain.PatientProfile) (*domain.RiskReport, error) {
	report := &domain.RiskReport{}

	failedLookups := 0
	for _, medication := range profile.Medications {
		medication = strings.TrimSpace(medication)
		if medication == "" {
			continue
		}

		facts, err := uc.graph.FactsForDrug(ctx, uc.drugs.Normalize(medication))
		if err != nil {
			if domain.IsKind(err, domain.ErrGraphUnavailable) {
				report.Summary = "无法连接知识图谱，风险检测受限"
				return report, nil
			}
			if ctx.Err() != nil {
				return nil, domain.WrapError(domain.ErrTemporary, "assess profile", ctx.Err())
			}
			failedLookups++
			continue
		}

		warnings := evaluateFacts(facts, profile, uc.aliases)
		if len(warnings) == 0 {
			report.SafeMedications = append(report.SafeMedications, medication)
			continue
		}
		report.Warnings = append(report.Warnings, warnings...)
	}

	report.Warnings = dedupWarnings(report.Warnings)
	sortWarnings(report.Warnings)
	if len(report.Warnings) > 0 {
		report.MostSevere = report.Warnings[0].Severity
	}
	report.Summary = summarizeRisk(report, failedLookups)
	return report, nil
}

// evaluateFacts applies every applicable rule. A drug may warn multiple
// times at different severities when several threshold rules trip.
func evaluateFacts(facts []domain.StructuredFact, profile domain.PatientProfile, aliases domain.MetricAliases) []domain.Warning {
	var warnings []domain.Warning
	for _, fact := range facts {
		switch fact.Predicate {
		case domain.PredicateContraindicatedIf:
			value, ok := profileMetric(profile, fact.Object, aliases)
			if !ok || !thresholdViolated(value, fact) {
				continue
			}
			warnings = append(warnings, domain.Warning{
				Drug:     fact.Drug,
				Reason:   metricReason(fact, value),
				Severity: fact.Severity,
				Fact:     fact,
			})
		case domain.PredicateForbiddenFor:
			if !hasCondition(profile.Complications, fact.Object) {
				continue
			}
			warnings = append(warnings, domain.Warning{
				Drug:     fact.Drug,
				Reason:   "患者存在 " + fact.Object,
				Severity: fact.Severity,
				Fact:     fact,
			})
		}
	}
	return warnings
}

// profileMetric resolves a rule's metric against the profile through
// alias normalization, so a CrCl rule can match an eGFR reading when the
// alias table equates them.
func profileMetric(profile domain.PatientProfile, metric string, aliases domain.MetricAliases) (float64, bool) {
	canonical := aliases.Canonical(metric)
	for name, value := range profile.Metrics {
		if strings.EqualFold(aliases.Canonical(name), canonical) {
			return value, true
		}
	}
	return 0, false
}

func thresholdViolated(value float64, fact domain.StructuredFact) bool {
	switch fact.Operator {
	case domain.OperatorLess:
		return value < fact.Threshold
	case domain.OperatorLessEq:
		return value <= fact.Threshold
	case domain.OperatorGreater:
		return value > fact.Threshold
	case domain.OperatorGreaterEq:
		return value >= fact.Threshold
	case domain.OperatorEqual:
		return value == fact.Threshold
	case domain.OperatorBetween:
		return fact.Threshold <= value && value <= fact.ThresholdMax
	default:
		return false
	}
}

func metricReason(fact domain.StructuredFact, value float64) string {
	if fact.Operator == domain.OperatorBetween {
		return fmt.Sprintf("%s 在 %g-%g 区间（患者: %g）", fact.Object, fact.Threshold, fact.ThresholdMax, value)
	}
	return fmt.Sprintf("%s %s %g（患者: %g）", fact.Object, fact.Operator, fact.Threshold, value)
}

// hasCondition matches disease names bidirectionally and
// case-insensitively, so "严重肾功能不全" in the profile matches a
// "肾功能不全" rule and vice versa.
func hasCondition(conditions []string, disease string) bool {
	d := strings.ToLower(strings.TrimSpace(disease))
	if d == "" {
		return false
	}
	for _, condition := range conditions {
		c := strings.ToLower(strings.TrimSpace(condition))
		if c == "" {
			continue
		}
		if strings.Contains(c, d) || strings.Contains(d, c) {
			return true
		}
	}
	return false
}

func dedupWarnings(warnings []domain.Warning) []domain.Warning {
	seen := make(map[string]struct{}, len(warnings))
	out := warnings[:0:0]
	for _, w := range warnings {
		key := w.Drug + "|" + w.Reason
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, w)
	}
	return out
}

func sortWarnings(warnings []domain.Warning) {
	sort.SliceStable(warnings, func(i, j int) bool {
		if warnings[i].Severity.Rank() != warnings[j].Severity.Rank() {
			return warnings[i].Severity.Rank() > warnings[j].Severity.Rank()
		}
		if warnings[i].Drug != warnings[j].Drug {
			return warnings[i].Drug < warnings[j].Drug
		}
		return warnings[i].Reason < warnings[j].Reason
	})
}

func summarizeRisk(report *domain.RiskReport, failedLookups int) string {
	var summary string
	switch {
	case len(report.Warnings) == 0:
		summary = "当前用药方案未检测到明显风险"
	default:
		var criticalDrugs []string
		seen := make(map[string]struct{})
		criticalCount := 0
		for _, w := range report.Warnings {
			if w.Severity != domain.SeverityCritical {
				continue
			}
			criticalCount++
			if _, dup := seen[w.Drug]; dup {
				continue
			}
			seen[w.Drug] = struct{}{}
			criticalDrugs = append(criticalDrugs, w.Drug)
		}
		if criticalCount > 0 {
			sort.Strings(criticalDrugs)
			summary = fmt.Sprintf("检测到 %d 个严重风险，涉及药品: %s，建议立即评估",
				criticalCount, strings.Join(criticalDrugs, ", "))
		} else {
			summary = fmt.Sprintf("检测到 %d 个用药风险，请结合临床情况综合评估", len(report.Warnings))
		}
	}
	if failedLookups > 0 {
		summary += fmt.Sprintf("；%d 个药品查询失败", failedLookups)
	}
	return summary
}
