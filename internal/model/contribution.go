package model

// Provenance tags which signal extractor produced a contribution
type Provenance string

const (
	ProvenanceEra       Provenance = "era_pattern"
	ProvenanceCulture   Provenance = "culture_pattern"
	ProvenanceStatus    Provenance = "status_pattern"
	ProvenanceTemporal  Provenance = "era_weighting"
	ProvenanceBiography Provenance = "biography_text_analysis"
)

// Contribution is the ephemeral output of one signal extractor.
// It is consumed by the aggregator and the confidence estimator and never persisted.
type Contribution struct {
	Provenance Provenance
	Fired      bool           // Whether the extractor had usable input
	Weight     int            // Magnitude of the applied evidence
	Hits       int            // Keyword hits (text extractor only)
	Deltas     [PoleCount]int // Additive offsets per pole
	Notes      []string       // Reasoning sentences
}

// Add applies delta to pole and the negated delta to its paired pole,
// so a contribution never changes an axis sum.
func (c *Contribution) Add(pole Pole, delta int) {
	c.Deltas[pole] += delta
	c.Deltas[pole.Pair()] -= delta
}

// Note appends a reasoning sentence
func (c *Contribution) Note(s string) {
	c.Notes = append(c.Notes, s)
}
