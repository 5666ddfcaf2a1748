package usecase

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

const contextSeparator = "============================================================"

// FusionLexicon drives the conflict heuristic: a passage naming a drug
// with a hard rule is superseded when it recommends the drug without a
// nearby negation. The lists are configuration; empty slices fall back
// to the defaults, which deliberately over-flag.
type FusionLexicon struct {
	Affirmative []string
	Negation    []string
}

func defaultFusionLexicon() FusionLexicon {
	return FusionLexicon{
		Affirmative: []string{
			"推荐", "建议", "可用", "可以使用", "首选", "适用", "应使用", "宜用",
			"recommended", "preferred", "suitable", "first-line",
		},
		Negation: []string{
			"不推荐", "不建议", "不宜", "不可", "不能", "禁用", "禁忌", "避免", "慎用", "停用",
			"not recommended", "avoid", "contraindicated",
		},
	}
}

func (l FusionLexicon) withDefaults() FusionLexicon {
	defaults := defaultFusionLexicon()
	if len(l.Affirmative) == 0 {
		l.Affirmative = defaults.Affirmative
	}
	if len(l.Negation) == 0 {
		l.Negation = defaults.Negation
	}
	return l
}

// isAffirmative reports whether text recommends use. Any negation cue
// wins over any affirmative cue, so "不推荐使用" never counts as a
// recommendation even though it contains "推荐".
func (l FusionLexicon) isAffirmative(text string) bool {
	lower := strings.ToLower(text)
	if containsAny(lower, lowerAll(l.Negation)) {
		return false
	}
	return containsAny(lower, lowerAll(l.Affirmative))
}

func lowerAll(words []string) []string {
	out := make([]string, len(words))
	for i, w := range words {
		out[i] = strings.ToLower(w)
	}
	return out
}

// fuseContext merges reranked passages with graph rows. Hard facts
// always outrank soft passages for the same drug: an affirmative passage
// naming a ruled drug is kept for audit but marked superseded and
// excluded from the safe interpretation.
func fuseContext(
	query string,
	passages []domain.GuidelinePassage,
	records []domain.GraphRecord,
	lexicon FusionLexicon,
) domain.FusedContext {
	lexicon = lexicon.withDefaults()

	facts := dedupFacts(factsFromRecords(records))
	byDrug := groupFactsByDrug(facts)

	seenDoc := make(map[string]struct{})
	var soft, superseded []domain.GuidelinePassage
	for _, passage := range passages {
		key := passage.DocID
		if key == "" {
			key = passageKey(passage)
		}
		if _, dup := seenDoc[key]; dup {
			continue
		}
		seenDoc[key] = struct{}{}

		if fact, conflicting := supersedingFact(passage, byDrug, lexicon); conflicting {
			passage.Superseded = true
			passage.SupersededBy = factReference(fact)
			superseded = append(superseded, passage)
			continue
		}
		soft = append(soft, passage)
	}

	fused := domain.FusedContext{
		HardFacts:    facts,
		SoftPassages: soft,
		Superseded:   superseded,
	}
	for _, fact := range facts {
		fused.Citations = append(fused.Citations, "知识图谱规则: "+factReference(fact))
	}
	for _, passage := range append(append([]domain.GuidelinePassage{}, soft...), superseded...) {
		fused.Citations = append(fused.Citations, "指南: "+passageCitation(passage))
	}
	fused.Rendered = renderContext(query, records, soft, superseded)
	return fused
}

// supersedingFact returns the most severe hard fact whose drug the
// passage both names and recommends.
func supersedingFact(
	passage domain.GuidelinePassage,
	byDrug map[string][]domain.StructuredFact,
	lexicon FusionLexicon,
) (domain.StructuredFact, bool) {
	if !lexicon.isAffirmative(passage.Text) {
		return domain.StructuredFact{}, false
	}
	lowerText := strings.ToLower(passage.Text)
	drugs := make([]string, 0, len(byDrug))
	for drug := range byDrug {
		drugs = append(drugs, drug)
	}
	sort.Strings(drugs)
	for _, drug := range drugs {
		if drug == "" || !strings.Contains(lowerText, strings.ToLower(drug)) {
			continue
		}
		return byDrug[drug][0], true
	}
	return domain.StructuredFact{}, false
}

func groupFactsByDrug(facts []domain.StructuredFact) map[string][]domain.StructuredFact {
	byDrug := make(map[string][]domain.StructuredFact)
	for _, fact := range facts {
		byDrug[fact.Drug] = append(byDrug[fact.Drug], fact)
	}
	for drug := range byDrug {
		group := byDrug[drug]
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Severity.Rank() > group[j].Severity.Rank()
		})
		byDrug[drug] = group
	}
	return byDrug
}

func dedupFacts(facts []domain.StructuredFact) []domain.StructuredFact {
	seen := make(map[string]struct{}, len(facts))
	out := facts[:0:0]
	for _, fact := range facts {
		if _, dup := seen[fact.Key()]; dup {
			continue
		}
		seen[fact.Key()] = struct{}{}
		out = append(out, fact)
	}
	return out
}

func factReference(fact domain.StructuredFact) string {
	return strings.TrimSpace(fmt.Sprintf("%s %s [%s]", fact.Drug, fact.ConditionText(), fact.Severity))
}

func passageCitation(passage domain.GuidelinePassage) string {
	name := passage.Filename
	if name == "" {
		name = passage.DocID
	}
	if passage.Section != "" {
		return name + " / " + passage.Section
	}
	return name
}

// renderContext assembles the merged text block: the question, the hard
// rules, the surviving passages, then superseded passages with the
// overriding rule spelled out.
func renderContext(query string, records []domain.GraphRecord, soft, superseded []domain.GuidelinePassage) string {
	var parts []string

	if len(records) > 0 {
		var b strings.Builder
		b.WriteString("【临床硬性规则】（来自知识图谱）\n")
		for i, record := range records {
			fmt.Fprintf(&b, "%d. %s\n", i+1, renderRecord(record))
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}

	if len(soft) > 0 {
		var b strings.Builder
		b.WriteString("【指南参考知识】（来自《中国糖尿病防治指南2024》）\n")
		for i, passage := range soft {
			fmt.Fprintf(&b, "%d. 【%s】\n   %s\n\n", i+1, passageLabel(passage), passageBody(passage))
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}

	if len(superseded) > 0 {
		var b strings.Builder
		b.WriteString("【已被硬性规则取代】（仅供审计，勿作推荐依据）\n")
		for i, passage := range superseded {
			fmt.Fprintf(&b, "%d. 【%s】（取代规则: %s）\n   %s\n\n",
				i+1, passageLabel(passage), passage.SupersededBy, passageBody(passage))
		}
		parts = append(parts, strings.TrimRight(b.String(), "\n"))
	}

	if len(parts) == 0 {
		return "（未检索到相关信息）"
	}

	merged := "\n\n" + strings.Join(parts, "\n\n"+contextSeparator+"\n\n")
	if query != "" {
		merged = "【用户问题】\n" + query + "\n" + merged
	}
	return merged
}

func passageLabel(passage domain.GuidelinePassage) string {
	label := passage.Section
	if label == "" {
		label = "未知章节"
	}
	if passage.EvidenceGrade != "" {
		label += " | 证据等级 " + passage.EvidenceGrade
	}
	return label
}

func passageBody(passage domain.GuidelinePassage) string {
	text := strings.TrimSpace(strings.ReplaceAll(passage.Text, "【章节】", ""))
	runes := []rune(text)
	if len(runes) > 300 {
		return string(runes[:300]) + "..."
	}
	return text
}

// renderRecord flattens one graph row to "key: value | ..." with sorted
// keys so identical rows render identically.
func renderRecord(record domain.GraphRecord) string {
	keys := make([]string, 0, len(record))
	for key := range record {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	items := make([]string, 0, len(keys))
	for _, key := range keys {
		items = append(items, fmt.Sprintf("%s: %s", key, renderValue(record[key])))
	}
	return strings.Join(items, " | ")
}

func renderValue(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			items[i] = renderValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// factsFromRecords maps loosely shaped graph rows onto structured facts.
// Column names vary with the generating tier, so both the canned Chinese
// aliases and plain property names are recognized. Rows without a drug
// name yield no fact.
func factsFromRecords(records []domain.GraphRecord) []domain.StructuredFact {
	var facts []domain.StructuredFact
	for _, record := range records {
		drug, ok := recordString(record, "药品名称", "drug", "drug_name", "d.name", "名称")
		if !ok || drug == "" {
			continue
		}
		fact := domain.StructuredFact{Drug: drug}

		if severity, found := recordString(record, "严重程度", "severity", "r.severity"); found {
			fact.Severity = domain.ParseSeverity(severity)
		} else {
			fact.Severity = domain.SeverityWarning
		}

		if disease, found := recordString(record, "禁忌疾病", "疾病", "disease", "dis.name"); found && disease != "" {
			fact.Predicate = domain.PredicateForbiddenFor
			fact.Object = disease
			facts = append(facts, fact)
			continue
		}

		fact.Predicate = domain.PredicateContraindicatedIf
		if metric, found := recordString(record, "指标", "metric", "m.name"); found {
			fact.Object = metric
		}
		if operator, found := recordString(record, "运算符", "operator", "r.operator"); found {
			fact.Operator = domain.Operator(operator)
		}
		if value, found := recordFloat(record, "阈值", "value", "threshold", "r.value"); found {
			fact.Threshold = value
		}
		if value, found := recordFloat(record, "下限", "value_min", "threshold_min"); found {
			fact.Threshold = value
			fact.Operator = domain.OperatorBetween
		}
		if value, found := recordFloat(record, "上限", "value_max", "threshold_max"); found {
			fact.ThresholdMax = value
			fact.Operator = domain.OperatorBetween
		}
		if unit, found := recordString(record, "单位", "unit", "r.unit"); found {
			fact.Unit = unit
		}
		facts = append(facts, fact)
	}
	return facts
}

func recordString(record domain.GraphRecord, keys ...string) (string, bool) {
	for _, key := range keys {
		if raw, ok := record[key]; ok {
			if s, isString := raw.(string); isString {
				return s, true
			}
		}
	}
	return "", false
}

func recordFloat(record domain.GraphRecord, keys ...string) (float64, bool) {
	for _, key := range keys {
		raw, ok := record[key]
		if !ok {
			continue
		}
		switch t := raw.(type) {
		case float64:
			return t, true
		case float32:
			return float64(t), true
		case int64:
			return float64(t), true
		case int:
			return float64(t), true
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return parsed, true
			}
		}
	}
	return 0, false
}
