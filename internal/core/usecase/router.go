package usecase

import (
	"strings"
	"unicode"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// graphCueWords are the surface cues indicating that the answer lives in
// the knowledge graph rather than in guideline prose.
var graphCueWords = []string{
	"egfr", "肾功能", "禁忌", "不能", "禁用", "慎用",
	"心力衰竭", "肝功能", "孕妇", "妊娠",
	"分类", "属于", "类药物", "商品名", "通用名",
	"监测", "剂量", "调整",
}

var (
	metricCueWords = []string{
		"egfr", "crcl", "肾功能", "肌酐", "肝功能", "转氨酶",
		"alt", "ast", "bmi", "肾小球滤过率", "肌酐清除率",
	}
	thresholdCueWords = []string{
		"小于", "大于", "低于", "高于", "不足", "超过",
		"<", ">", "≤", "≥",
	}
	categoryCueWords = []string{
		"分类", "属于", "类药物", "哪类", "类型",
		"双胍", "sglt2", "glp-1", "dpp-4", "磺脲",
	}
	diseaseCueWords = []string{
		"心力衰竭", "心衰", "酮症", "胰腺炎", "孕妇", "妊娠",
		"肾衰", "肾功能不全", "肝功能不全", "过敏",
	}
	contraCueWords = []string{"禁忌", "禁用", "不能", "慎用", "避免"}
)

// routeQuery decides whether the graph branch runs for this query. An
// explicit caller override always wins; otherwise the query is scanned
// for the built-in graph cues plus any configured extras. Latin cues
// match case-insensitively, so "egfr" and "eGFR" route alike. The
// intent is classified either way because the template tier needs it
// even under an override.
func routeQuery(query string, override *bool, extraCues ...string) domain.RouteDecision {
	intent := classifyIntent(query)
	if override != nil {
		return domain.RouteDecision{UseKG: *override, Intent: intent}
	}
	lower := strings.ToLower(query)
	for _, cue := range graphCueWords {
		if strings.Contains(lower, cue) {
			return domain.RouteDecision{UseKG: true, Intent: intent}
		}
	}
	for _, cue := range extraCues {
		if cue != "" && strings.Contains(lower, strings.ToLower(cue)) {
			return domain.RouteDecision{UseKG: true, Intent: intent}
		}
	}
	return domain.RouteDecision{UseKG: false, Intent: intent}
}

// classifyIntent buckets the query for the template fallback tier.
// Metric questions need a numeric threshold or a comparison word next to
// a metric name; a bare metric mention usually asks for prose instead.
func classifyIntent(query string) domain.Intent {
	lower := strings.ToLower(query)
	switch {
	case containsAny(lower, metricCueWords) &&
		(containsAny(lower, thresholdCueWords) || containsDigit(lower)):
		return domain.IntentMetricThreshold
	case containsAny(lower, diseaseCueWords) && containsAny(lower, contraCueWords):
		return domain.IntentDiseaseContraindication
	case containsAny(lower, categoryCueWords):
		return domain.IntentDrugCategory
	default:
		return domain.IntentNone
	}
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

func containsDigit(s string) bool {
	return strings.IndexFunc(s, unicode.IsDigit) >= 0
}
