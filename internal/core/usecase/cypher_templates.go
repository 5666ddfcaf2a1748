package usecase

import (
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// Canned read queries for when both the model and the example store come
// up empty. Column aliases stay in the knowledge base's language because
// rows are rendered into the merged context verbatim.
const (
	cypherMetricRules = `MATCH (d:Drug)-[r:CONTRAINDICATED_IF]->(m:Metric {name: $metric})
RETURN d.name AS 药品名称, r.operator AS 运算符, r.value AS 阈值, r.severity AS 严重程度
ORDER BY r.value`

	cypherMetricRulesAtValue = `MATCH (d:Drug)-[r:CONTRAINDICATED_IF]->(m:Metric {name: $metric})
WHERE (r.operator IN ['<', '<='] AND r.value >= $value)
   OR (r.operator IN ['>', '>='] AND r.value <= $value)
   OR (r.operator = 'BETWEEN' AND r.value_min <= $value AND $value <= r.value_max)
RETURN d.name AS 药品名称, r.operator AS 运算符, r.value AS 阈值, r.severity AS 严重程度
ORDER BY r.value`

	cypherCategoryDrugs = `MATCH (c:Category)<-[:BELONGS_TO]-(d:Drug)
RETURN c.name AS 分类, COLLECT(d.name) AS 药品列表`

	cypherCategoryDrugsNamed = `MATCH (c:Category)<-[:BELONGS_TO]-(d:Drug)
WHERE c.name CONTAINS $category
RETURN c.name AS 分类, COLLECT(d.name) AS 药品列表`

	cypherDiseaseForbidden = `MATCH (d:Drug)-[r:FORBIDDEN_FOR]->(dis:Disease)
RETURN d.name AS 药品名称, dis.name AS 禁忌疾病, r.severity AS 严重程度
LIMIT 50`

	cypherDiseaseForbiddenNamed = `MATCH (d:Drug)-[r:FORBIDDEN_FOR]->(dis:Disease)
WHERE dis.name CONTAINS $disease
RETURN d.name AS 药品名称, dis.name AS 禁忌疾病, r.severity AS 严重程度`
)

// A standalone number, not one glued to a token like GLP-1 or SGLT2.
var thresholdNumberRe = regexp.MustCompile(`(?:^|[^0-9A-Za-z.\-])([0-9]+(?:\.[0-9]+)?)`)

// Surface spellings mapped to the substring bound into CONTAINS
// matching. Latin spellings need canonical casing because CONTAINS is
// case-sensitive on the graph side.
var categoryPatterns = []struct{ surface, bind string }{
	{"sglt-2", "SGLT2"},
	{"sglt2", "SGLT2"},
	{"glp-1", "GLP-1"},
	{"glp1", "GLP-1"},
	{"dpp-4", "DPP-4"},
	{"dpp4", "DPP-4"},
	{"噻唑烷", "噻唑烷"},
	{"格列奈", "格列奈"},
	{"糖苷酶", "糖苷酶"},
	{"胰岛素", "胰岛素"},
	{"双胍", "双胍"},
	{"磺脲", "磺脲"},
}

var diseasePatterns = []struct{ surface, bind string }{
	{"心力衰竭", "心力衰竭"},
	{"心衰", "心力衰竭"},
	{"酮症酸中毒", "酮症酸中毒"},
	{"酮症", "酮症"},
	{"胰腺炎", "胰腺炎"},
	{"肾功能不全", "肾功能不全"},
	{"肝功能不全", "肝功能不全"},
	{"甲状腺髓样癌", "甲状腺髓样癌"},
	{"妊娠", "妊娠"},
	{"孕妇", "妊娠"},
	{"过敏", "过敏"},
}

// templateForIntent binds the canned query for the routed intent,
// extracting parameters from the question text. The boolean is false
// when no template covers the intent.
func templateForIntent(intent domain.Intent, question string, aliases domain.MetricAliases) (domain.GraphQuery, bool) {
	lower := strings.ToLower(question)
	switch intent {
	case domain.IntentMetricThreshold:
		metric := metricFromQuery(lower, aliases)
		if value, ok := thresholdFromQuery(question); ok {
			return domain.GraphQuery{
				Text:   cypherMetricRulesAtValue,
				Params: map[string]any{"metric": metric, "value": value},
			}, true
		}
		return domain.GraphQuery{
			Text:   cypherMetricRules,
			Params: map[string]any{"metric": metric},
		}, true
	case domain.IntentDrugCategory:
		for _, p := range categoryPatterns {
			if strings.Contains(lower, p.surface) {
				return domain.GraphQuery{
					Text:   cypherCategoryDrugsNamed,
					Params: map[string]any{"category": p.bind},
				}, true
			}
		}
		return domain.GraphQuery{Text: cypherCategoryDrugs}, true
	case domain.IntentDiseaseContraindication:
		for _, p := range diseasePatterns {
			if strings.Contains(lower, p.surface) {
				return domain.GraphQuery{
					Text:   cypherDiseaseForbiddenNamed,
					Params: map[string]any{"disease": p.bind},
				}, true
			}
		}
		return domain.GraphQuery{Text: cypherDiseaseForbidden}, true
	default:
		return domain.GraphQuery{}, false
	}
}

// metricFromQuery resolves the first metric the question names. Renal
// questions default to eGFR, which is the metric the knowledge base
// keys renal rules on.
func metricFromQuery(lowerQuestion string, aliases domain.MetricAliases) string {
	canonicals := make([]string, 0, len(aliases))
	for canonical := range aliases {
		canonicals = append(canonicals, canonical)
	}
	sort.Strings(canonicals)
	for _, canonical := range canonicals {
		if strings.Contains(lowerQuestion, strings.ToLower(canonical)) {
			return canonical
		}
		for _, alias := range aliases[canonical] {
			if strings.Contains(lowerQuestion, strings.ToLower(alias)) {
				return canonical
			}
		}
	}
	return "eGFR"
}

func thresholdFromQuery(question string) (float64, bool) {
	match := thresholdNumberRe.FindStringSubmatch(question)
	if match == nil {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return value, true
}
