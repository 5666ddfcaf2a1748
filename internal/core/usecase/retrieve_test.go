package usecase

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

type searchIndexFake struct {
	semantic    []domain.GuidelinePassage
	lexical     []domain.GuidelinePassage
	semanticErr error
	lexicalErr  error
	block       bool
}

func (f *searchIndexFake) SearchSemantic(ctx context.Context, _ string, _ int) ([]domain.GuidelinePassage, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.semanticErr != nil {
		return nil, f.semanticErr
	}
	return f.semantic, nil
}

func (f *searchIndexFake) SearchLexical(ctx context.Context, _ string, _ int) ([]domain.GuidelinePassage, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.lexicalErr != nil {
		return nil, f.lexicalErr
	}
	return f.lexical, nil
}

func (f *searchIndexFake) IndexChunks(context.Context, *domain.GuidelineDocument, []domain.SectionChunk, [][]float32) error {
	return nil
}

type pipelineGraphFake struct {
	rows   []domain.GraphRecord
	runErr error
	block  bool
	calls  int
	cypher string
	params map[string]any
}

func (f *pipelineGraphFake) Run(ctx context.Context, cypher string, params map[string]any) ([]domain.GraphRecord, error) {
	f.calls++
	f.cypher = cypher
	f.params = params
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.runErr != nil {
		return nil, f.runErr
	}
	return f.rows, nil
}

func (f *pipelineGraphFake) FactsForDrug(context.Context, string) ([]domain.StructuredFact, error) {
	return nil, nil
}

func (f *pipelineGraphFake) DrugInfo(context.Context, string) (*domain.DrugInfo, error) {
	return nil, nil
}

func guidelineFixture() ([]domain.GuidelinePassage, []domain.GuidelinePassage) {
	a := domain.GuidelinePassage{DocID: "doc-a", Filename: "guide.pdf", Section: "药物治疗", Text: "二甲双胍用于一线治疗。"}
	b := domain.GuidelinePassage{DocID: "doc-b", Filename: "guide.pdf", Section: "心血管", Text: "SGLT2抑制剂的心血管获益。"}
	return []domain.GuidelinePassage{a, b}, []domain.GuidelinePassage{b, a}
}

func newPipeline(index *searchIndexFake, graph *pipelineGraphFake, scorer *scorerFake, cfg RetrieveConfig) *RetrieveUseCase {
	return NewRetrieveUseCase(index, scorer, graph, nil, &poolFake{}, cfg)
}

func TestRetrieveRoutedQuestionUsesTemplateTier(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	graph := &pipelineGraphFake{rows: []domain.GraphRecord{metforminRecord()}}
	scorer := &scorerFake{scores: []float64{0.3, 0.8}}
	uc := newPipeline(index, graph, scorer, RetrieveConfig{MetricAliases: testAliases()})

	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{
		Query: "eGFR小于30的患者不能使用哪些药物",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.UseKGEffective {
		t.Fatalf("renal threshold question must route to the graph")
	}
	if result.KGSource != domain.KGSourceTemplate {
		t.Fatalf("without a model the template tier must serve, got %s", result.KGSource)
	}
	if graph.cypher != cypherMetricRulesAtValue {
		t.Fatalf("unexpected cypher sent to the store:\n%s", graph.cypher)
	}
	if graph.params["metric"] != "eGFR" || graph.params["value"] != 30.0 {
		t.Fatalf("unexpected params %v", graph.params)
	}
	if len(result.KGAttempts) != 2 {
		t.Fatalf("expected example and template attempts only, got %+v", result.KGAttempts)
	}
	if len(result.KGResults) != 1 {
		t.Fatalf("expected graph rows in the result, got %d", len(result.KGResults))
	}
	if len(result.RAGResults) != 2 || result.RAGResults[0].DocID != "doc-b" {
		t.Fatalf("rerank order must drive the passage list, got %+v", result.RAGResults)
	}
	if result.RerankSkipped || len(result.Degraded) != 0 {
		t.Fatalf("healthy pipeline must not degrade: skipped=%v degraded=%v", result.RerankSkipped, result.Degraded)
	}
	if !result.Success {
		t.Fatalf("expected success")
	}
	if !strings.Contains(result.MergedContext, "【临床硬性规则】") {
		t.Fatalf("merged context must carry the hard-rule block:\n%s", result.MergedContext)
	}
}

func TestRetrieveCallerDisablesGraph(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	graph := &pipelineGraphFake{rows: []domain.GraphRecord{metforminRecord()}}
	scorer := &scorerFake{scores: []float64{0.3, 0.8}}
	uc := newPipeline(index, graph, scorer, RetrieveConfig{MetricAliases: testAliases()})

	off := false
	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{
		Query: "eGFR小于30的患者不能使用哪些药物",
		UseKG: &off,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.UseKGEffective {
		t.Fatalf("caller override must win over routing cues")
	}
	if graph.calls != 0 {
		t.Fatalf("graph store must not be touched when disabled, calls=%d", graph.calls)
	}
	if result.KGSource != domain.KGSourceNone || len(result.KGResults) != 0 || len(result.KGAttempts) != 0 {
		t.Fatalf("graph fields must stay empty: %+v", result)
	}
	if !result.Success || len(result.RAGResults) != 2 {
		t.Fatalf("text branch must still serve: %+v", result)
	}
}

func TestRetrieveDegradesWhenBothIndexModesFail(t *testing.T) {
	index := &searchIndexFake{
		semanticErr: errors.New("vector store down"),
		lexicalErr:  errors.New("sparse index down"),
	}
	uc := newPipeline(index, &pipelineGraphFake{}, &scorerFake{}, RetrieveConfig{})

	off := false
	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "测试问题", UseKG: &off})
	if err != nil {
		t.Fatalf("index outages must degrade, not fail: %v", err)
	}

	want := []string{domain.DegradedSemanticIndex, domain.DegradedLexicalIndex}
	if !reflect.DeepEqual(result.Degraded, want) {
		t.Fatalf("expected markers %v, got %v", want, result.Degraded)
	}
	if result.Success {
		t.Fatalf("nothing retrieved anywhere, success must be false")
	}
	if result.MergedContext != "（未检索到相关信息）" {
		t.Fatalf("unexpected merged context %q", result.MergedContext)
	}
}

func TestRetrieveSingleIndexModeStillServes(t *testing.T) {
	semantic, _ := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexicalErr: errors.New("sparse index down")}
	scorer := &scorerFake{scores: []float64{0.5, 0.4}}
	uc := newPipeline(index, &pipelineGraphFake{}, scorer, RetrieveConfig{})

	off := false
	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "饮食建议", UseKG: &off})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !reflect.DeepEqual(result.Degraded, []string{domain.DegradedLexicalIndex}) {
		t.Fatalf("expected lexical marker only, got %v", result.Degraded)
	}
	if !result.Success || len(result.RAGResults) != 2 {
		t.Fatalf("semantic-only fusion must still serve: %+v", result)
	}
}

func TestRetrieveRerankFailureDegrades(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	scorer := &scorerFake{err: errors.New("reranker down")}
	uc := newPipeline(index, &pipelineGraphFake{}, scorer, RetrieveConfig{})

	off := false
	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "饮食建议", UseKG: &off})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.RerankSkipped {
		t.Fatalf("rerank failure must be flagged")
	}
	if !reflect.DeepEqual(result.Degraded, []string{domain.DegradedRerank}) {
		t.Fatalf("expected rerank marker, got %v", result.Degraded)
	}
	if len(result.RAGResults) != 2 {
		t.Fatalf("fusion order must pass through on skip, got %+v", result.RAGResults)
	}
}

func TestRetrieveGraphOutageFlipsEffectiveFlag(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	graph := &pipelineGraphFake{
		runErr: domain.WrapError(domain.ErrGraphUnavailable, "graph query", errors.New("dial tcp refused")),
	}
	scorer := &scorerFake{scores: []float64{0.3, 0.8}}
	uc := newPipeline(index, graph, scorer, RetrieveConfig{MetricAliases: testAliases()})

	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "eGFR小于30禁用哪些药物"})
	if err != nil {
		t.Fatalf("graph outage must degrade, not fail: %v", err)
	}

	if result.UseKGEffective {
		t.Fatalf("store outage must flip the effective flag off")
	}
	if !reflect.DeepEqual(result.Degraded, []string{domain.DegradedGraph}) {
		t.Fatalf("expected graph marker, got %v", result.Degraded)
	}
	if len(result.KGResults) != 0 {
		t.Fatalf("no rows expected on outage")
	}
	if !result.Success {
		t.Fatalf("text branch still serves, success must hold")
	}
}

func TestRetrieveGraphQueryFailureKeepsFlagOn(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	graph := &pipelineGraphFake{runErr: errors.New("syntax error near RETURN")}
	scorer := &scorerFake{scores: []float64{0.3, 0.8}}
	uc := newPipeline(index, graph, scorer, RetrieveConfig{MetricAliases: testAliases()})

	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "eGFR小于30禁用哪些药物"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result.UseKGEffective {
		t.Fatalf("a failed query is not an outage, flag must stay on")
	}
	if !reflect.DeepEqual(result.Degraded, []string{domain.DegradedGraphQuery}) {
		t.Fatalf("expected query-failure marker, got %v", result.Degraded)
	}
}

func TestRetrieveTextBranchTimeout(t *testing.T) {
	index := &searchIndexFake{block: true}
	uc := newPipeline(index, &pipelineGraphFake{}, &scorerFake{}, RetrieveConfig{
		TextBranchTimeout: 30 * time.Millisecond,
	})

	off := false
	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "问题", UseKG: &off})
	if err != nil {
		t.Fatalf("branch timeout must degrade, not fail: %v", err)
	}

	found := false
	for _, marker := range result.Degraded {
		if marker == domain.DegradedTextTimeout {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected timeout marker, got %v", result.Degraded)
	}
	if len(result.RAGResults) != 0 {
		t.Fatalf("timed-out branch must yield no passages")
	}
}

func TestRetrieveGraphBranchTimeout(t *testing.T) {
	semantic, lexical := guidelineFixture()
	index := &searchIndexFake{semantic: semantic, lexical: lexical}
	graph := &pipelineGraphFake{block: true}
	scorer := &scorerFake{scores: []float64{0.3, 0.8}}
	uc := newPipeline(index, graph, scorer, RetrieveConfig{
		MetricAliases:      testAliases(),
		GraphBranchTimeout: 30 * time.Millisecond,
	})

	result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "eGFR小于30禁用哪些药物"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.UseKGEffective {
		t.Fatalf("graph timeout must flip the effective flag off")
	}
	if !reflect.DeepEqual(result.Degraded, []string{domain.DegradedGraphTimeout}) {
		t.Fatalf("expected graph timeout marker, got %v", result.Degraded)
	}
}

func TestRetrieveRejectsEmptyQuery(t *testing.T) {
	uc := newPipeline(&searchIndexFake{}, &pipelineGraphFake{}, &scorerFake{}, RetrieveConfig{})

	_, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{Query: "   "})
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}

func TestRetrieveDeterministic(t *testing.T) {
	run := func() *domain.RetrieveResult {
		semantic, lexical := guidelineFixture()
		index := &searchIndexFake{semantic: semantic, lexical: lexical}
		graph := &pipelineGraphFake{rows: []domain.GraphRecord{metforminRecord()}}
		scorer := &scorerFake{scores: []float64{0.3, 0.8}}
		uc := newPipeline(index, graph, scorer, RetrieveConfig{MetricAliases: testAliases()})

		result, err := uc.Retrieve(context.Background(), domain.RetrieveRequest{
			Query: "eGFR小于30的患者不能使用哪些药物",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		return result
	}

	first := run()
	for i := 0; i < 5; i++ {
		if next := run(); !reflect.DeepEqual(first, next) {
			t.Fatalf("identical inputs must produce identical results:\n%+v\n%+v", first, next)
		}
	}
}
