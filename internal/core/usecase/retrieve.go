package usecase

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

const (
	defaultHybridTopK  = 10
	defaultRerankTopK  = 3
	defaultRRFConstant = 60

	defaultExampleThreshold  = 0.2
	defaultPromptExamples    = 3
	defaultTextBranchTimeout = 8 * time.Second
	defaultGraphBranchLimit  = 6 * time.Second
)

// RetrieveConfig carries the pipeline tunables. Zero values take the
// documented defaults.
type RetrieveConfig struct {
	HybridTopK         int
	RerankTopK         int
	RRFConstant        int
	ExampleThreshold   float64
	PromptExamples     int
	TextBranchTimeout  time.Duration
	GraphBranchTimeout time.Duration
	SchemaText         string
	Examples           []domain.CypherExample
	MetricAliases      domain.MetricAliases
	Lexicon            FusionLexicon
	GraphCues          []string
}

func (c RetrieveConfig) withDefaults() RetrieveConfig {
	if c.HybridTopK <= 0 {
		c.HybridTopK = defaultHybridTopK
	}
	if c.RerankTopK <= 0 {
		c.RerankTopK = defaultRerankTopK
	}
	if c.RRFConstant <= 0 {
		c.RRFConstant = defaultRRFConstant
	}
	if c.ExampleThreshold <= 0 {
		c.ExampleThreshold = defaultExampleThreshold
	}
	if c.PromptExamples <= 0 {
		c.PromptExamples = defaultPromptExamples
	}
	if c.TextBranchTimeout <= 0 {
		c.TextBranchTimeout = defaultTextBranchTimeout
	}
	if c.GraphBranchTimeout <= 0 {
		c.GraphBranchTimeout = defaultGraphBranchLimit
	}
	c.Lexicon = c.Lexicon.withDefaults()
	return c
}

// RetrieveUseCase runs the two-branch pipeline: hybrid retrieval plus
// rerank on one side, query generation plus graph execution on the
// other, joined by context fusion. All collaborator handles are
// read-only and safe for concurrent use.
type RetrieveUseCase struct {
	index     ports.SearchIndex
	scorer    ports.RelevanceScorer
	graph     ports.GraphStore
	pool      ports.WorkerPool
	generator *cypherGenerator
	cfg       RetrieveConfig
}

func NewRetrieveUseCase(
	index ports.SearchIndex,
	scorer ports.RelevanceScorer,
	graph ports.GraphStore,
	llm ports.TextGenerator,
	pool ports.WorkerPool,
	cfg RetrieveConfig,
) *RetrieveUseCase {
	cfg = cfg.withDefaults()
	return &RetrieveUseCase{
		index:  index,
		scorer: scorer,
		graph:  graph,
		pool:   pool,
		generator: &cypherGenerator{
			llm:            llm,
			examples:       cfg.Examples,
			schemaText:     cfg.SchemaText,
			aliases:        cfg.MetricAliases,
			promptExamples: cfg.PromptExamples,
			matchThreshold: cfg.ExampleThreshold,
		},
		cfg: cfg,
	}
}

type textOutcome struct {
	passages      []domain.GuidelinePassage
	rerankSkipped bool
	degraded      []string
}

type graphOutcome struct {
	records  []domain.GraphRecord
	query    string
	source   domain.KGSource
	attempts []domain.CypherAttempt
	degraded []string
	useKG    bool
}

// Retrieve answers one clinical question. Branch failures degrade the
// result instead of failing the call; the only errors returned are
// invalid input and caller cancellation.
func (uc *RetrieveUseCase) Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResult, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve", errors.New("empty query"))
	}

	route := routeQuery(query, req.UseKG, uc.cfg.GraphCues...)

	hybridTopK := uc.cfg.HybridTopK
	if req.HybridTopK > 0 {
		hybridTopK = req.HybridTopK
	}
	rerankTopK := uc.cfg.RerankTopK
	if req.RerankTopK > 0 {
		rerankTopK = req.RerankTopK
	}

	textCh := make(chan textOutcome, 1)
	graphCh := make(chan graphOutcome, 1)

	go func() {
		textCh <- uc.runTextBranch(ctx, query, hybridTopK, rerankTopK)
	}()
	go func() {
		graphCh <- uc.runGraphBranch(ctx, query, route, req.Generator)
	}()

	text := <-textCh
	graph := <-graphCh

	if err := ctx.Err(); err != nil {
		return nil, domain.WrapError(domain.ErrTemporary, "retrieve", err)
	}

	fused := fuseContext(query, text.passages, graph.records, uc.cfg.Lexicon)

	result := &domain.RetrieveResult{
		Query:          query,
		UseKGEffective: graph.useKG,
		RAGResults:     orderedPassages(fused),
		KGResults:      graph.records,
		KGQuery:        graph.query,
		KGSource:       graph.source,
		KGAttempts:     graph.attempts,
		MergedContext:  fused.Rendered,
		RerankSkipped:  text.rerankSkipped,
		Degraded:       append(text.degraded, graph.degraded...),
	}
	result.Success = len(result.RAGResults) > 0 || len(result.KGResults) > 0
	return result, nil
}

// runTextBranch fuses both index modes and reranks, under the branch
// deadline. The two index calls run concurrently; losing one mode
// degrades to single-source fusion, losing both yields an empty branch.
func (uc *RetrieveUseCase) runTextBranch(ctx context.Context, query string, hybridTopK, rerankTopK int) textOutcome {
	branchCtx, cancel := context.WithTimeout(ctx, uc.cfg.TextBranchTimeout)
	defer cancel()

	var (
		wg                sync.WaitGroup
		semantic, lexical []domain.GuidelinePassage
		semanticErr       error
		lexicalErr        error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		semantic, semanticErr = uc.index.SearchSemantic(branchCtx, query, hybridTopK)
	}()
	go func() {
		defer wg.Done()
		lexical, lexicalErr = uc.index.SearchLexical(branchCtx, query, hybridTopK)
	}()
	wg.Wait()

	var out textOutcome
	if semanticErr != nil {
		semantic = nil
		out.degraded = append(out.degraded, domain.DegradedSemanticIndex)
	}
	if lexicalErr != nil {
		lexical = nil
		out.degraded = append(out.degraded, domain.DegradedLexicalIndex)
	}

	fused := trimPassages(fusePassagesRRF(semantic, lexical, uc.cfg.RRFConstant), hybridTopK)

	passages, skipped := rerankPassages(branchCtx, uc.scorer, uc.pool, query, fused, rerankTopK)
	if skipped {
		out.degraded = append(out.degraded, domain.DegradedRerank)
	}
	out.rerankSkipped = skipped
	out.passages = passages

	if errors.Is(branchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		out.degraded = append(out.degraded, domain.DegradedTextTimeout)
	}
	return out
}

// runGraphBranch generates and executes the structured query when the
// router (or the caller) asked for it. A store outage or a branch
// timeout flips the effective use_kg off; a merely failed query keeps it
// on and reports empty rows.
func (uc *RetrieveUseCase) runGraphBranch(ctx context.Context, query string, route domain.RouteDecision, override domain.GeneratorFunc) graphOutcome {
	out := graphOutcome{source: domain.KGSourceNone}
	if !route.UseKG {
		return out
	}
	out.useKG = true

	branchCtx, cancel := context.WithTimeout(ctx, uc.cfg.GraphBranchTimeout)
	defer cancel()

	generated, ok := uc.generator.generate(branchCtx, query, route.Intent, override)
	out.attempts = generated.Attempts
	if !ok {
		return out
	}
	out.query = generated.Text
	out.source = generated.Source

	records, err := uc.graph.Run(branchCtx, generated.Text, generated.Params)
	switch {
	case err == nil:
		out.records = records
	case errors.Is(branchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		out.useKG = false
		out.degraded = append(out.degraded, domain.DegradedGraphTimeout)
	case domain.IsKind(err, domain.ErrGraphUnavailable):
		out.useKG = false
		out.degraded = append(out.degraded, domain.DegradedGraph)
	default:
		out.degraded = append(out.degraded, domain.DegradedGraphQuery)
	}
	return out
}

// orderedPassages reassembles the annotated passages in rank order,
// superseded ones included, so callers see the full reranked list with
// supersession flags attached.
func orderedPassages(fused domain.FusedContext) []domain.GuidelinePassage {
	out := make([]domain.GuidelinePassage, 0, len(fused.SoftPassages)+len(fused.Superseded))
	out = append(out, fused.SoftPassages...)
	out = append(out, fused.Superseded...)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].DocID != out[j].DocID {
			return out[i].DocID < out[j].DocID
		}
		return out[i].ChunkIndex < out[j].ChunkIndex
	})
	return out
}
