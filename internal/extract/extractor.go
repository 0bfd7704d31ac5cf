// Package extract holds the signal extractors. Each extractor reads one
// kind of fact, consults the reference tables and emits a Contribution.
// Extractors never read each other's output and may run in any order.
package extract

import (
	"strings"

	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

// Extractor converts one fact type into a pole contribution.
// A contribution with Fired=false means the fact was absent or unusable.
// A returned error is an extractor fault; the contribution is then discarded.
type Extractor interface {
	Name() string
	Extract(facts model.EntityFacts) (model.Contribution, error)
}

// Standard returns the extractors in pipeline order: era, culture, status,
// birth year, biography.
func Standard(t *tables.Tables) []Extractor {
	return []Extractor{
		NewEraExtractor(t),
		NewCultureExtractor(t),
		NewStatusExtractor(t),
		NewTemporalExtractor(t),
		NewTextExtractor(t),
	}
}

func joinPoles(poles []model.Pole) string {
	names := make([]string, len(poles))
	for i, p := range poles {
		names[i] = p.String()
	}
	return strings.Join(names, "+")
}
