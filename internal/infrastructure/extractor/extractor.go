package extractor

import (
	"context"
	"strings"

	"github.com/kirillkom/clinical-ai-assistant/internal/core/domain"
	"github.com/kirillkom/clinical-ai-assistant/internal/core/ports"
)

// Selector routes extraction by MIME type: PDFs to the pdf extractor,
// everything else to the plaintext one.
type Selector struct {
	pdf   ports.TextExtractor
	plain ports.TextExtractor
}

func NewSelector(pdfExtractor, plainExtractor ports.TextExtractor) *Selector {
	return &Selector{pdf: pdfExtractor, plain: plainExtractor}
}

func (s *Selector) Extract(ctx context.Context, doc *domain.GuidelineDocument) (string, error) {
	if isPDF(doc) {
		return s.pdf.Extract(ctx, doc)
	}
	return s.plain.Extract(ctx, doc)
}

func isPDF(doc *domain.GuidelineDocument) bool {
	if strings.EqualFold(strings.TrimSpace(doc.MimeType), "application/pdf") {
		return true
	}
	return strings.HasSuffix(strings.ToLower(doc.Filename), ".pdf")
}
