package model

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// EntityFacts are the sparse input facts about one entity.
// Only ID is required; every other field is independently optional.
type EntityFacts struct {
	ID           string `json:"id"`
	Biography    string `json:"biography,omitempty"`     // Free text, possibly HTML or multilingual
	EraLabel     string `json:"era_label,omitempty"`     // Movement or period, e.g. "Renaissance"
	CultureLabel string `json:"culture_label,omitempty"` // Culture or origin, e.g. "Italian"
	StatusLabel  string `json:"status_label,omitempty"`  // e.g. "living", "deceased"
	BirthYear    *int   `json:"birth_year,omitempty"`
	Source       string `json:"source,omitempty"` // Ingestion source tag; never scored
}

// Validate rejects facts without an id
func (f EntityFacts) Validate() error {
	if strings.TrimSpace(f.ID) == "" {
		return errors.Mark(errors.New("entity facts missing required id"), ErrInput)
	}
	return nil
}

// HasBirthYear reports whether a birth year is present
func (f EntityFacts) HasBirthYear() bool {
	return f.BirthYear != nil
}

// Year is a helper for building facts with a birth year
func Year(y int) *int {
	return &y
}
