package ports

import (
	"context"
	"io"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// SearchIndex serves both retrieval modes over the guideline collection
// and accepts chunks at ingestion time.
type SearchIndex interface {
	SearchSemantic(ctx context.Context, query string, limit int) ([]domain.GuidelinePassage, error)
	SearchLexical(ctx context.Context, query string, limit int) ([]domain.GuidelinePassage, error)
	IndexChunks(ctx context.Context, doc *domain.GuidelineDocument, chunks []domain.SectionChunk, vectors [][]float32) error
}

// RelevanceScorer scores (query, passage) pairs with a cross-encoder
// model. Scores align by index with the texts argument.
type RelevanceScorer interface {
	ScorePairs(ctx context.Context, query string, texts []string) ([]float64, error)
}

// GraphStore executes read-only queries against the clinical knowledge
// graph and provides the typed lookups the risk detector needs.
type GraphStore interface {
	Run(ctx context.Context, cypher string, params map[string]any) ([]domain.GraphRecord, error)
	FactsForDrug(ctx context.Context, drug string) ([]domain.StructuredFact, error)
	DrugInfo(ctx context.Context, drug string) (*domain.DrugInfo, error)
}

// GraphWriter applies schema and data mutations to the knowledge
// graph. Only the dataset loader uses it; request paths stay read-only.
type GraphWriter interface {
	EnsureSchema(ctx context.Context) error
	Apply(ctx context.Context, statements []domain.GraphStatement) error
	Wipe(ctx context.Context) error
}

// TextGenerator produces model text for a prompt. Used for graph-query
// generation only.
type TextGenerator interface {
	GenerateFromPrompt(ctx context.Context, prompt string) (string, error)
}

// Embedder builds vectors for chunks and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// Chunker splits extracted guideline text into section-tagged chunks.
type Chunker interface {
	Split(text string) []domain.SectionChunk
}

// TextExtractor extracts plain text from a stored document.
type TextExtractor interface {
	Extract(ctx context.Context, doc *domain.GuidelineDocument) (string, error)
}

// DocumentRepository persists and reads guideline document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.GuidelineDocument) error
	GetByID(ctx context.Context, id string) (*domain.GuidelineDocument, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SetIndexed(ctx context.Context, id string, chunkCount int) error
}

// ObjectStorage stores uploaded guideline files.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// MessageQueue publishes/consumes guideline ingestion events.
type MessageQueue interface {
	PublishGuidelineIngested(ctx context.Context, documentID string) error
	SubscribeGuidelineIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// WorkerPool bounds blocking model inference shared across requests.
type WorkerPool interface {
	Submit(task func()) error
	Running() int
}
