package extract

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

// CategoricalExtractor maps a categorical label to the dominant poles named
// by its reference table entry and adds the table's magnitude to each.
type CategoricalExtractor struct {
	tables     *tables.Tables
	category   tables.Category
	provenance model.Provenance
	label      func(model.EntityFacts) string
}

// NewEraExtractor creates the era/movement extractor (era_pattern)
func NewEraExtractor(t *tables.Tables) *CategoricalExtractor {
	return &CategoricalExtractor{
		tables:     t,
		category:   tables.CategoryEra,
		provenance: model.ProvenanceEra,
		label:      func(f model.EntityFacts) string { return f.EraLabel },
	}
}

// NewCultureExtractor creates the culture/origin extractor (culture_pattern)
func NewCultureExtractor(t *tables.Tables) *CategoricalExtractor {
	return &CategoricalExtractor{
		tables:     t,
		category:   tables.CategoryCulture,
		provenance: model.ProvenanceCulture,
		label:      func(f model.EntityFacts) string { return f.CultureLabel },
	}
}

// NewStatusExtractor creates the status extractor (status_pattern)
func NewStatusExtractor(t *tables.Tables) *CategoricalExtractor {
	return &CategoricalExtractor{
		tables:     t,
		category:   tables.CategoryStatus,
		provenance: model.ProvenanceStatus,
		label:      func(f model.EntityFacts) string { return f.StatusLabel },
	}
}

// Name returns the table category
func (e *CategoricalExtractor) Name() string {
	return string(e.category)
}

// Extract looks up the label and applies the entry's pole pattern
func (e *CategoricalExtractor) Extract(facts model.EntityFacts) (model.Contribution, error) {
	c := model.Contribution{Provenance: e.provenance}

	label := strings.TrimSpace(e.label(facts))
	if label == "" {
		return c, nil
	}

	entry, ok := e.tables.Lookup(e.category, label)
	if !ok {
		c.Note(fmt.Sprintf("%s label %q not found in reference tables", e.category, label))
		return c, nil
	}

	if len(entry.Poles) == 0 {
		return model.Contribution{}, errors.Newf("%s entry %q names no dominant pole", e.category, entry.Label)
	}
	poles := make([]model.Pole, 0, len(entry.Poles))
	for _, name := range entry.Poles {
		p, err := model.ParsePole(name)
		if err != nil {
			return model.Contribution{}, errors.Wrapf(err, "%s entry %q", e.category, entry.Label)
		}
		poles = append(poles, p)
	}

	magnitude := e.tables.Magnitude(e.category)
	c.Fired = true
	c.Weight = magnitude
	for _, p := range poles {
		c.Add(p, magnitude)
	}

	subject := fmt.Sprintf("%s %q", e.category, entry.Label)
	if tables.Fold(label) != tables.Fold(entry.Label) {
		subject = fmt.Sprintf("%s %q (as %q)", e.category, entry.Label, label)
	}
	c.Note(fmt.Sprintf("%s applied dominant-pole pattern %s (+%d each)", subject, joinPoles(poles), magnitude))

	return c, nil
}
