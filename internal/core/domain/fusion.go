package domain

// FusedContext is the pipeline's terminal artifact: deduplicated hard
// facts, surviving soft passages, superseded passages kept for audit,
// and a rendered citation block for the downstream consumer.
type FusedContext struct {
	HardFacts    []StructuredFact   `json:"hard_facts"`
	SoftPassages []GuidelinePassage `json:"soft_passages"`
	Superseded   []GuidelinePassage `json:"superseded_passages,omitempty"`
	Citations    []string           `json:"citations,omitempty"`
	Rendered     string             `json:"rendered"`
}
