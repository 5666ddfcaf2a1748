package usecase

import (
	"sort"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// keywordWeights biases example selection toward the clinical terms that
// discriminate between query families. Keys are lowercased; Latin terms
// match case-insensitively through the lowered question text.
var keywordWeights = map[string]int{
	"egfr": 3, "肾功能": 3,
	"小于": 2, "<": 2, "大于": 2, ">": 2,
	"禁用": 3, "禁忌": 3, "不能": 2,
	"药物": 2, "药品": 2, "哪些": 1,
	"双胍": 3, "sglt2": 3, "glp-1": 3, "dpp-4": 3, "磺脲": 3,
	"分类": 2, "类型": 2, "属于": 2,
	"心力衰竭": 3, "肝功能": 3,
	"二甲双胍": 3, "格列": 2,
	"30": 2, "45": 2, "60": 2,
	"监测": 2, "调整": 2, "剂量": 2,
}

// keywordScore sums the weights of the keywords present in both texts.
func keywordScore(a, b string) int {
	la, lb := strings.ToLower(a), strings.ToLower(b)
	score := 0
	for kw, weight := range keywordWeights {
		if strings.Contains(la, kw) && strings.Contains(lb, kw) {
			score += weight
		}
	}
	return score
}

// selectExamples returns the topK examples most relevant to question,
// keyword score descending. Ties keep input order, so the result does
// not depend on map iteration.
func selectExamples(examples []domain.CypherExample, question string, topK int) []domain.CypherExample {
	type rankedExample struct {
		score int
		index int
	}
	ranked := make([]rankedExample, len(examples))
	for i, ex := range examples {
		ranked[i] = rankedExample{score: keywordScore(question, ex.Question), index: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].score > ranked[j].score
	})
	if topK < 0 || topK > len(ranked) {
		topK = len(ranked)
	}
	out := make([]domain.CypherExample, 0, topK)
	for _, r := range ranked[:topK] {
		out = append(out, examples[r.index])
	}
	return out
}

// matchExample returns the nearest example question when its plain token
// overlap with the query clears the threshold. Keyword weighting picks
// the candidate; unweighted Jaccard decides acceptance, so one shared
// hot word cannot hijack the tier.
func matchExample(examples []domain.CypherExample, question string, threshold float64) (domain.CypherExample, bool) {
	best := selectExamples(examples, question, 1)
	if len(best) == 0 {
		return domain.CypherExample{}, false
	}
	sim := jaccardSimilarity(toTokenSet(question), toTokenSet(best[0].Question))
	if sim <= threshold {
		return domain.CypherExample{}, false
	}
	return best[0], true
}
