package domain

import "context"

// GuidelinePassage is one indexed chunk of guideline text as it moves
// through fusion and reranking. Score carries the stage-local ordering
// value: RRF score after fusion, relevance after reranking.
type GuidelinePassage struct {
	DocID         string  `json:"doc_id"`
	ChunkIndex    int     `json:"chunk_index"`
	Filename      string  `json:"filename,omitempty"`
	Section       string  `json:"section,omitempty"`
	EvidenceGrade string  `json:"evidence_grade,omitempty"`
	Text          string  `json:"text"`
	Score         float64 `json:"score"`
	Superseded    bool    `json:"superseded,omitempty"`
	SupersededBy  string  `json:"superseded_by,omitempty"`
}

// GeneratorFunc produces model text for a prompt. A request may carry its
// own; otherwise the configured backend is used.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

type RetrieveRequest struct {
	Query      string        `json:"query"`
	UseKG      *bool         `json:"use_kg,omitempty"`
	HybridTopK int           `json:"hybrid_top_k,omitempty"`
	RerankTopK int           `json:"rerank_top_k,omitempty"`
	Generator  GeneratorFunc `json:"-"`
}

type KGSource string

const (
	KGSourceLLM      KGSource = "llm"
	KGSourceExample  KGSource = "example_match"
	KGSourceTemplate KGSource = "template"
	KGSourceNone     KGSource = "none"
)

// Degradation markers reported in RetrieveResult.Degraded.
const (
	DegradedLexicalIndex  = "lexical_index_unavailable"
	DegradedSemanticIndex = "semantic_index_unavailable"
	DegradedRerank        = "rerank_unavailable"
	DegradedGraph         = "graph_unavailable"
	DegradedGraphQuery    = "graph_query_failed"
	DegradedTextTimeout   = "text_branch_timeout"
	DegradedGraphTimeout  = "graph_branch_timeout"
)

type RetrieveResult struct {
	Query          string             `json:"query"`
	UseKGEffective bool               `json:"use_kg_effective"`
	RAGResults     []GuidelinePassage `json:"rag_results"`
	KGResults      []GraphRecord      `json:"kg_results"`
	KGQuery        string             `json:"kg_query,omitempty"`
	KGSource       KGSource           `json:"kg_source"`
	KGAttempts     []CypherAttempt    `json:"kg_attempts,omitempty"`
	MergedContext  string             `json:"merged_context"`
	RerankSkipped  bool               `json:"rerank_skipped,omitempty"`
	Degraded       []string           `json:"degraded,omitempty"`
	Success        bool               `json:"success"`
}
