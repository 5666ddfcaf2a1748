package ports

import (
	"context"
	"io"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
)

// ClinicalRetriever is the inbound contract for the retrieval-fusion
// pipeline.
type ClinicalRetriever interface {
	Retrieve(ctx context.Context, req domain.RetrieveRequest) (*domain.RetrieveResult, error)
}

// RiskAssessor evaluates a patient profile against graph facts.
type RiskAssessor interface {
	Assess(ctx context.Context, profile domain.PatientProfile) (*domain.RiskReport, error)
}

// DrugInfoReader answers entity lookups about a single drug.
type DrugInfoReader interface {
	Lookup(ctx context.Context, name string) (*domain.DrugInfo, error)
}

// GuidelineIngestor is the inbound contract for guideline upload
// orchestration.
type GuidelineIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.GuidelineDocument, error)
}

// GuidelineReader is the inbound read model for document state.
type GuidelineReader interface {
	GetByID(ctx context.Context, id string) (*domain.GuidelineDocument, error)
}

// GuidelineProcessor is the inbound contract for asynchronous indexing.
type GuidelineProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}
