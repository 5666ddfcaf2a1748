package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

const cypherSystemPrompt = `你是 Neo4j Cypher 查询专家。根据下面的知识图谱结构，把用户问题转换为只读 Cypher 查询。

%s

要求:
1. 只生成查询，禁止任何写操作
2. 必须包含 MATCH 和 RETURN 子句
3. 返回列使用中文别名
4. 只输出 Cypher，放在 ` + "```cypher```" + ` 代码块中`

// cypherGenerator turns a routed question into a graph query through a
// strictly sequential fallback chain: model attempt, then example match,
// then intent template. Every attempt is recorded whether or not a later
// tier succeeds.
type cypherGenerator struct {
	llm            ports.TextGenerator
	examples       []domain.CypherExample
	schemaText     string
	aliases        domain.MetricAliases
	promptExamples int
	matchThreshold float64
}

// generate runs the chain. A per-request override callback replaces the
// configured model for this call only; with neither present the model
// tier is skipped without recording an attempt.
func (g *cypherGenerator) generate(
	ctx context.Context,
	question string,
	intent domain.Intent,
	override domain.GeneratorFunc,
) (domain.GraphQuery, bool) {
	var attempts []domain.CypherAttempt

	callModel := override
	if callModel == nil && g.llm != nil {
		callModel = g.llm.GenerateFromPrompt
	}

	if callModel != nil {
		attempt := domain.CypherAttempt{Tier: domain.TierLLM}
		raw, err := callModel(ctx, g.buildPrompt(question))
		if err != nil {
			attempt.Error = err.Error()
		} else {
			cypher := extractCypher(raw)
			attempt.Query = cypher
			if vErr := validateCypher(cypher); vErr != nil {
				attempt.Error = vErr.Error()
			} else {
				attempt.OK = true
				attempts = append(attempts, attempt)
				return domain.GraphQuery{
					Text:     cypher,
					Source:   domain.KGSourceLLM,
					Attempts: attempts,
				}, true
			}
		}
		attempts = append(attempts, attempt)
	}

	exampleAttempt := domain.CypherAttempt{Tier: domain.TierExample}
	if ex, ok := matchExample(g.examples, question, g.matchThreshold); ok {
		exampleAttempt.Query = ex.Cypher
		exampleAttempt.OK = true
		attempts = append(attempts, exampleAttempt)
		return domain.GraphQuery{
			Text:     ex.Cypher,
			Source:   domain.KGSourceExample,
			Attempts: attempts,
		}, true
	}
	exampleAttempt.Error = "no example above similarity threshold"
	attempts = append(attempts, exampleAttempt)

	templateAttempt := domain.CypherAttempt{Tier: domain.TierTemplate}
	if query, ok := templateForIntent(intent, question, g.aliases); ok {
		templateAttempt.Query = query.Text
		templateAttempt.OK = true
		attempts = append(attempts, templateAttempt)
		query.Source = domain.KGSourceTemplate
		query.Attempts = attempts
		return query, true
	}
	templateAttempt.Error = fmt.Sprintf("no template for intent %s", intent)
	attempts = append(attempts, templateAttempt)

	return domain.GraphQuery{Source: domain.KGSourceNone, Attempts: attempts}, false
}

// buildPrompt assembles system instructions, the schema description, the
// most relevant few-shot examples, and the question.
func (g *cypherGenerator) buildPrompt(question string) string {
	var b strings.Builder
	fmt.Fprintf(&b, cypherSystemPrompt, g.schemaText)
	b.WriteString("\n\n")

	topK := g.promptExamples
	if topK <= 0 {
		topK = 3
	}
	for i, ex := range selectExamples(g.examples, question, topK) {
		fmt.Fprintf(&b, "示例%d:\n问题: %s\nCypher:\n```cypher\n%s\n```\n", i+1, ex.Question, ex.Cypher)
		if ex.Explanation != "" {
			fmt.Fprintf(&b, "说明: %s\n", ex.Explanation)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "问题: %s\nCypher:\n", question)
	return b.String()
}
