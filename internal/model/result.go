package model

// Result is the self-contained output record for one entity.
// Field names are stable; persistence collaborators may rely on them.
type Result struct {
	EntityID     string       `json:"entity_id"`
	Profile      Profile      `json:"profile"`
	Types        []TypeWeight `json:"types"`               // Primary first, then optional secondary
	Confidence   float64      `json:"confidence"`          // 0 to confidence cap
	Provenance   []Provenance `json:"provenance"`          // Extractors that fired, in pipeline order
	Reasoning    []string     `json:"reasoning"`           // Human-readable trace
	Faults       []string     `json:"faults,omitempty"`    // Extractor faults recorded for this entity
	TableVersion string       `json:"table_version"`       // name@version of the reference tables used
	RunID        string       `json:"run_id,omitempty"`    // Batch run that produced the result
	Narrative    *Narrative   `json:"narrative,omitempty"` // Optional prose, never affects scoring
}

// TypeRank distinguishes primary from secondary type codes
type TypeRank string

const (
	RankPrimary   TypeRank = "primary"
	RankSecondary TypeRank = "secondary"
)

// TypeWeight is a 4-character type code with its informational weight
type TypeWeight struct {
	Code   string   `json:"code"`
	Weight float64  `json:"weight"`
	Rank   TypeRank `json:"rank"`
}

// Primary returns the primary type code
func (r *Result) Primary() string {
	for _, t := range r.Types {
		if t.Rank == RankPrimary {
			return t.Code
		}
	}
	return ""
}

// Secondary returns the secondary type code, if any
func (r *Result) Secondary() (string, bool) {
	for _, t := range r.Types {
		if t.Rank == RankSecondary {
			return t.Code, true
		}
	}
	return "", false
}

// HasProvenance reports whether the given extractor fired
func (r *Result) HasProvenance(p Provenance) bool {
	for _, got := range r.Provenance {
		if got == p {
			return true
		}
	}
	return false
}

// Narrative contains an optional LLM-written summary of the reasoning trace.
// CRITICAL: it is attached after scoring and never affects any other field.
type Narrative struct {
	Provider string   `json:"provider,omitempty"`
	Model    string   `json:"model,omitempty"`
	Text     string   `json:"text,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}
