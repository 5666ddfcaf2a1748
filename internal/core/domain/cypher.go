package domain

type Intent string

const (
	IntentMetricThreshold         Intent = "metric_threshold"
	IntentDrugCategory            Intent = "drug_category"
	IntentDiseaseContraindication Intent = "disease_contraindication"
	IntentNone                    Intent = "none"
)

type RouteDecision struct {
	UseKG  bool   `json:"use_kg"`
	Intent Intent `json:"intent"`
}

type CypherTier string

const (
	TierLLM      CypherTier = "llm"
	TierExample  CypherTier = "example_match"
	TierTemplate CypherTier = "template"
)

// Source maps a generation tier to the provenance value reported in
// RetrieveResult.KGSource.
func (t CypherTier) Source() KGSource {
	switch t {
	case TierLLM:
		return KGSourceLLM
	case TierExample:
		return KGSourceExample
	case TierTemplate:
		return KGSourceTemplate
	default:
		return KGSourceNone
	}
}

// CypherAttempt records one tier's outcome; all attempts are retained
// for provenance even after a later tier succeeds.
type CypherAttempt struct {
	Tier  CypherTier `json:"tier"`
	Query string     `json:"query,omitempty"`
	OK    bool       `json:"ok"`
	Error string     `json:"error,omitempty"`
}

// GraphQuery is the terminal product of the generation chain.
type GraphQuery struct {
	Text     string          `json:"text"`
	Params   map[string]any  `json:"params,omitempty"`
	Source   KGSource        `json:"source"`
	Attempts []CypherAttempt `json:"attempts,omitempty"`
}

// CypherExample pairs a natural-language question with its canonical
// read query. Examples feed the few-shot prompt and the example-match
// fallback tier.
type CypherExample struct {
	Question    string `yaml:"question" json:"question"`
	Cypher      string `yaml:"cypher" json:"cypher"`
	Explanation string `yaml:"explanation,omitempty" json:"explanation,omitempty"`
}
