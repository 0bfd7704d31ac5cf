package extract

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

// TemporalExtractor applies the per-pole deltas of the birth-year range
// containing the entity's birth year (era_weighting).
type TemporalExtractor struct {
	tables *tables.Tables
}

// NewTemporalExtractor creates a birth-year extractor
func NewTemporalExtractor(t *tables.Tables) *TemporalExtractor {
	return &TemporalExtractor{tables: t}
}

// Name returns "birth_year"
func (e *TemporalExtractor) Name() string {
	return "birth_year"
}

// Extract finds the range for the birth year and applies its deltas
func (e *TemporalExtractor) Extract(facts model.EntityFacts) (model.Contribution, error) {
	c := model.Contribution{Provenance: model.ProvenanceTemporal}
	if !facts.HasBirthYear() {
		return c, nil
	}
	year := *facts.BirthYear

	r, ok := e.tables.RangeFor(year)
	if !ok {
		c.Note(fmt.Sprintf("birth year %d is outside every reference range", year))
		return c, nil
	}

	// Sorted so the reasoning sentence is stable
	names := make([]string, 0, len(r.Deltas))
	for name := range r.Deltas {
		names = append(names, name)
	}
	sort.Strings(names)

	// Add mirrors every delta onto the paired pole, so one pole per axis
	var seen [model.AxisCount]bool
	parts := make([]string, 0, len(names))
	for _, name := range names {
		p, err := model.ParsePole(name)
		if err != nil {
			return model.Contribution{}, errors.Wrapf(err, "birth year range %d..%d", r.Start, r.End)
		}
		if seen[p.Axis()] {
			return model.Contribution{}, errors.Newf("birth year range %d..%d names both poles of the %s axis", r.Start, r.End, p.Axis())
		}
		seen[p.Axis()] = true
		d := r.Deltas[name]
		c.Add(p, d)
		if d < 0 {
			c.Weight -= d
		} else {
			c.Weight += d
		}
		parts = append(parts, fmt.Sprintf("%s %+d", p, d))
	}
	c.Fired = true

	label := r.Label
	if label == "" {
		label = "range"
	}
	c.Note(fmt.Sprintf("birth year %d falls in %s (%d-%d): %s", year, label, r.Start, r.End, strings.Join(parts, ", ")))

	return c, nil
}
