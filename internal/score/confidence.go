package score

import (
	"fmt"
	"math"

	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

// Estimate is a confidence value with its itemised bonuses
type Estimate struct {
	Value    float64
	Base     float64
	Bonuses  []Bonus
	Decisive int // Poles far enough from neutral to earn the decisive bonus
	Capped   bool
}

// Bonus is one additive confidence component
type Bonus struct {
	Source model.Provenance
	Value  float64
}

// String renders the estimate for the reasoning trace
func (e Estimate) String() string {
	s := fmt.Sprintf("confidence %.4g (base %.2f", e.Value, e.Base)
	for _, b := range e.Bonuses {
		s += fmt.Sprintf(" + %s %.3g", b.Source, b.Value)
	}
	if e.Decisive > 0 {
		s += fmt.Sprintf(" + %d decisive pole(s)", e.Decisive)
	}
	s += ")"
	if e.Capped {
		s += " capped"
	}
	return s
}

// Estimator computes confidence from the fired contributions and final profile
type Estimator struct {
	rules tables.ConfidenceRules
}

// NewEstimator creates an estimator using the table confidence rules
func NewEstimator(t *tables.Tables) *Estimator {
	return &Estimator{rules: t.Confidence}
}

// Estimate adds one bonus per distinct fired provenance tag and a small
// bonus per decisive pole to the base, then caps. No fired contribution
// yields exactly the base.
func (e *Estimator) Estimate(contributions []model.Contribution, p model.Profile) Estimate {
	est := Estimate{Base: e.rules.Base}

	seen := make(map[model.Provenance]int)
	hits := 0
	for _, c := range contributions {
		if !c.Fired {
			continue
		}
		if _, ok := seen[c.Provenance]; !ok {
			seen[c.Provenance] = len(est.Bonuses)
			est.Bonuses = append(est.Bonuses, Bonus{Source: c.Provenance})
		}
		if c.Provenance == model.ProvenanceBiography {
			hits += c.Hits
		}
	}

	total := e.rules.Base
	for i := range est.Bonuses {
		est.Bonuses[i].Value = e.bonus(est.Bonuses[i].Source, hits)
		total += est.Bonuses[i].Value
	}

	if len(est.Bonuses) > 0 {
		for _, v := range p {
			d := v - model.Neutral
			if d < 0 {
				d = -d
			}
			if d > e.rules.DecisiveThreshold {
				est.Decisive++
			}
		}
		total += float64(est.Decisive) * e.rules.DecisiveBonus
	}

	if total > e.rules.Cap {
		total = e.rules.Cap
		est.Capped = true
	}
	est.Value = round4(total)

	return est
}

func (e *Estimator) bonus(source model.Provenance, hits int) float64 {
	switch source {
	case model.ProvenanceEra:
		return e.rules.Era
	case model.ProvenanceCulture:
		return e.rules.Culture
	case model.ProvenanceStatus:
		return e.rules.Status
	case model.ProvenanceTemporal:
		return e.rules.Temporal
	case model.ProvenanceBiography:
		return math.Min(e.rules.TextMax, e.rules.TextBase+e.rules.TextPerHit*float64(hits))
	}
	return 0
}
