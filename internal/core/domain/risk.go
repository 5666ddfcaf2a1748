package domain

// PatientProfile is the assessment input. Metrics are keyed by metric
// name in any known spelling; complications are free-text disease names.
type PatientProfile struct {
	Medications   []string           `json:"medications"`
	Metrics       map[string]float64 `json:"metrics"`
	Complications []string           `json:"complications"`
}

type Warning struct {
	Drug     string         `json:"drug"`
	Reason   string         `json:"reason"`
	Severity Severity       `json:"severity"`
	Fact     StructuredFact `json:"fact"`
}

// RiskReport lists every triggered rule, most severe first. Medications
// that triggered nothing are listed as safe so callers can show both
// halves of the assessment.
type RiskReport struct {
	Warnings        []Warning `json:"warnings"`
	SafeMedications []string  `json:"safe_medications"`
	MostSevere      Severity  `json:"most_severe,omitempty"`
	Summary         string    `json:"summary"`
}
