package domain

import "time"

type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "uploaded"
	StatusProcessing DocumentStatus = "processing"
	StatusIndexed    DocumentStatus = "indexed"
	StatusFailed     DocumentStatus = "failed"
)

// GuidelineDocument tracks one uploaded guideline through extraction,
// chunking, and indexing.
type GuidelineDocument struct {
	ID          string         `json:"id"`
	Filename    string         `json:"filename"`
	MimeType    string         `json:"mime_type"`
	StoragePath string         `json:"storage_path"`
	Source      string         `json:"source,omitempty"`
	ChunkCount  int            `json:"chunk_count,omitempty"`
	Status      DocumentStatus `json:"status"`
	Error       string         `json:"error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// SectionChunk is one split unit of guideline text with the heading it
// was found under and the evidence grade its text declares, if any.
type SectionChunk struct {
	Section       string `json:"section,omitempty"`
	EvidenceGrade string `json:"evidence_grade,omitempty"`
	Text          string `json:"text"`
}
