// Package tables holds the versioned reference tables that drive scoring:
// categorical pole patterns, birth-year ranges, keyword lexicons and every
// magnitude the engine applies. Tables are immutable once loaded.
package tables

import (
	"fmt"
	"slices"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

// Category names a categorical lookup table
type Category string

const (
	CategoryEra     Category = "era"
	CategoryCulture Category = "culture"
	CategoryStatus  Category = "status"
)

// Tables is a complete reference table document.
// Exported fields mirror the document; callers must treat them as read-only.
type Tables struct {
	Name       string          `yaml:"name" json:"name" toml:"name"`
	Version    string          `yaml:"version" json:"version" toml:"version"`
	Axes       []AxisSpec      `yaml:"axes" json:"axes" toml:"axes"`
	Bounds     Bounds          `yaml:"bounds" json:"bounds" toml:"bounds"`
	Magnitudes Magnitudes      `yaml:"magnitudes" json:"magnitudes" toml:"magnitudes"`
	Text       TextRules       `yaml:"text" json:"text" toml:"text"`
	Ambiguity  AmbiguityRules  `yaml:"ambiguity" json:"ambiguity" toml:"ambiguity"`
	Confidence ConfidenceRules `yaml:"confidence" json:"confidence" toml:"confidence"`
	Eras       []Entry         `yaml:"eras" json:"eras" toml:"eras"`
	Cultures   []Entry         `yaml:"cultures" json:"cultures" toml:"cultures"`
	Statuses   []Entry         `yaml:"statuses" json:"statuses" toml:"statuses"`
	Ranges     []YearRange     `yaml:"birth_year_ranges" json:"birth_year_ranges" toml:"birth_year_ranges"`

	// Lexicons maps pole name to language code to keywords
	Lexicons map[string]map[string][]string `yaml:"lexicons" json:"lexicons" toml:"lexicons"`

	defaults [model.AxisCount]model.Pole
	index    map[Category]map[string]int
	keywords [model.PoleCount][]string
}

// AxisSpec declares the pole order and tie default of one axis
type AxisSpec struct {
	Name    string `yaml:"name" json:"name" toml:"name"`
	First   string `yaml:"first" json:"first" toml:"first"`
	Second  string `yaml:"second" json:"second" toml:"second"`
	Default string `yaml:"default" json:"default" toml:"default"`
}

// Bounds is the closed range every pole value is clamped into
type Bounds struct {
	Lower int `yaml:"lower" json:"lower" toml:"lower"`
	Upper int `yaml:"upper" json:"upper" toml:"upper"`
}

// Magnitudes are the per-pole offsets of the categorical extractors
type Magnitudes struct {
	Era     int `yaml:"era" json:"era" toml:"era"`
	Culture int `yaml:"culture" json:"culture" toml:"culture"`
	Status  int `yaml:"status" json:"status" toml:"status"`
}

// TextRules configure biography keyword scanning
type TextRules struct {
	MinLength int `yaml:"min_length" json:"min_length" toml:"min_length"` // runes of the stripped, folded text; biographies this short or shorter are skipped
	PerHit    int `yaml:"per_hit" json:"per_hit" toml:"per_hit"`
}

// AmbiguityRules configure secondary type selection
type AmbiguityRules struct {
	Threshold int `yaml:"threshold" json:"threshold" toml:"threshold"`
}

// ConfidenceRules are the bonuses of the confidence estimator
type ConfidenceRules struct {
	Base              float64 `yaml:"base" json:"base" toml:"base"`
	Cap               float64 `yaml:"cap" json:"cap" toml:"cap"`
	Era               float64 `yaml:"era" json:"era" toml:"era"`
	Culture           float64 `yaml:"culture" json:"culture" toml:"culture"`
	Status            float64 `yaml:"status" json:"status" toml:"status"`
	Temporal          float64 `yaml:"temporal" json:"temporal" toml:"temporal"`
	TextBase          float64 `yaml:"text_base" json:"text_base" toml:"text_base"`
	TextPerHit        float64 `yaml:"text_per_hit" json:"text_per_hit" toml:"text_per_hit"`
	TextMax           float64 `yaml:"text_max" json:"text_max" toml:"text_max"`
	DecisiveThreshold int     `yaml:"decisive_threshold" json:"decisive_threshold" toml:"decisive_threshold"`
	DecisiveBonus     float64 `yaml:"decisive_bonus" json:"decisive_bonus" toml:"decisive_bonus"`
}

// Entry maps a categorical label (and its aliases) to dominant poles
type Entry struct {
	Label   string   `yaml:"label" json:"label" toml:"label"`
	Aliases []string `yaml:"aliases,omitempty" json:"aliases,omitempty" toml:"aliases"`
	Poles   []string `yaml:"poles" json:"poles" toml:"poles"`
}

// YearRange is an inclusive birth-year range with per-pole deltas
type YearRange struct {
	Label  string         `yaml:"label,omitempty" json:"label,omitempty" toml:"label"`
	Start  int            `yaml:"start" json:"start" toml:"start"`
	End    int            `yaml:"end" json:"end" toml:"end"`
	Deltas map[string]int `yaml:"deltas" json:"deltas" toml:"deltas"`
}

// Contains reports whether year falls inside the range
func (r YearRange) Contains(year int) bool {
	return year >= r.Start && year <= r.End
}

// ID returns name@version, the identifier recorded in every reasoning trace
func (t *Tables) ID() string {
	return t.Name + "@" + t.Version
}

// Default returns the pole that wins an exact tie on the axis
func (t *Tables) Default(a model.Axis) model.Pole {
	return t.defaults[a]
}

// Magnitude returns the per-pole offset for a categorical table
func (t *Tables) Magnitude(c Category) int {
	switch c {
	case CategoryEra:
		return t.Magnitudes.Era
	case CategoryCulture:
		return t.Magnitudes.Culture
	case CategoryStatus:
		return t.Magnitudes.Status
	}
	return 0
}

// Lookup finds the entry whose label or alias matches label after folding
func (t *Tables) Lookup(c Category, label string) (Entry, bool) {
	idx, ok := t.index[c][Fold(label)]
	if !ok {
		return Entry{}, false
	}
	return t.entries(c)[idx], true
}

// RangeFor returns the single range containing year
func (t *Tables) RangeFor(year int) (YearRange, bool) {
	i := sort.Search(len(t.Ranges), func(i int) bool { return t.Ranges[i].End >= year })
	if i < len(t.Ranges) && t.Ranges[i].Contains(year) {
		return t.Ranges[i], true
	}
	return YearRange{}, false
}

// Keywords returns the folded keywords of a pole across all languages, sorted
func (t *Tables) Keywords(p model.Pole) []string {
	return slices.Clone(t.keywords[p])
}

func (t *Tables) entries(c Category) []Entry {
	switch c {
	case CategoryEra:
		return t.Eras
	case CategoryCulture:
		return t.Cultures
	case CategoryStatus:
		return t.Statuses
	}
	return nil
}

// compile validates structure and builds lookup indexes.
// Structural problems are fatal; problems inside individual entries are
// left to the extractors (and reported by Lint).
func (t *Tables) compile() error {
	if t.Name == "" || t.Version == "" {
		return errors.Mark(errors.New("tables must declare name and version"), model.ErrTables)
	}
	if err := t.compileAxes(); err != nil {
		return err
	}
	if t.Bounds.Lower >= model.Neutral || t.Bounds.Upper <= model.Neutral || t.Bounds.Lower+t.Bounds.Upper != model.AxisTotal {
		return errors.Mark(errors.Newf("bounds [%d, %d] must be symmetric around %d", t.Bounds.Lower, t.Bounds.Upper, model.Neutral), model.ErrTables)
	}
	if err := t.compileConfidence(); err != nil {
		return err
	}
	if err := t.compileRanges(); err != nil {
		return err
	}
	if err := t.compileLexicons(); err != nil {
		return err
	}

	t.index = make(map[Category]map[string]int, 3)
	for _, c := range []Category{CategoryEra, CategoryCulture, CategoryStatus} {
		idx := make(map[string]int)
		for i, e := range t.entries(c) {
			for _, label := range append([]string{e.Label}, e.Aliases...) {
				key := Fold(label)
				if key == "" {
					continue
				}
				if _, dup := idx[key]; !dup {
					idx[key] = i
				}
			}
		}
		t.index[c] = idx
	}
	return nil
}

// newTables returns a document pre-filled with the default magnitudes and
// confidence rules. Decoding over it replaces only the keys a document sets,
// so an explicit zero survives.
func newTables() Tables {
	return Tables{
		Bounds:     Bounds{Lower: 10, Upper: 90},
		Magnitudes: Magnitudes{Era: 20, Culture: 15, Status: 10},
		Text:       TextRules{MinLength: 50, PerHit: 5},
		Ambiguity:  AmbiguityRules{Threshold: 25},
		Confidence: ConfidenceRules{
			Base:              0.4,
			Cap:               0.95,
			Era:               0.2,
			Culture:           0.15,
			Status:            0.1,
			Temporal:          0.1,
			TextBase:          0.05,
			TextPerHit:        0.025,
			TextMax:           0.15,
			DecisiveThreshold: 25,
			DecisiveBonus:     0.005,
		},
	}
}

// compileConfidence keeps confidence monotone: no bonus may be negative, and
// the decisive bonus of every pole together must stay below the smallest
// bonus a signal that moves the profile can earn.
func (t *Tables) compileConfidence() error {
	c := t.Confidence
	if c.Base > c.Cap || c.Cap > 1 {
		return errors.Mark(errors.Newf("confidence base %.2f must not exceed cap %.2f (cap <= 1)", c.Base, c.Cap), model.ErrTables)
	}

	bonuses := []struct {
		key   string
		value float64
	}{
		{"era", c.Era},
		{"culture", c.Culture},
		{"status", c.Status},
		{"temporal", c.Temporal},
		{"text_base", c.TextBase},
		{"text_per_hit", c.TextPerHit},
		{"text_max", c.TextMax},
		{"decisive_bonus", c.DecisiveBonus},
	}
	for _, b := range bonuses {
		if b.value < 0 {
			return errors.Mark(errors.Newf("confidence %s bonus %.3g must not be negative", b.key, b.value), model.ErrTables)
		}
	}

	decisive := float64(model.PoleCount) * c.DecisiveBonus
	smallest := min(c.Era, c.Culture, c.Status, c.Temporal, min(c.TextMax, c.TextBase+c.TextPerHit))
	if decisive > 0 && decisive >= smallest {
		return errors.Mark(errors.Newf("confidence decisive_bonus %.3g over %d poles (%.3g) must stay below the smallest signal bonus %.3g",
			c.DecisiveBonus, model.PoleCount, decisive, smallest), model.ErrTables)
	}
	return nil
}

func (t *Tables) compileAxes() error {
	if len(t.Axes) == 0 {
		for _, a := range model.AllAxes() {
			t.defaults[a] = a.First()
		}
		return nil
	}
	if len(t.Axes) != model.AxisCount {
		return errors.Mark(errors.Newf("expected %d axes, got %d", model.AxisCount, len(t.Axes)), model.ErrTables)
	}
	for i, spec := range t.Axes {
		a := model.Axis(i)
		first, err1 := model.ParsePole(spec.First)
		second, err2 := model.ParsePole(spec.Second)
		if err1 != nil || err2 != nil || first != a.First() || second != a.Second() {
			return errors.Mark(errors.Newf("axis %d must be %s/%s, got %q/%q", i+1, a.First(), a.Second(), spec.First, spec.Second), model.ErrTables)
		}
		def := first
		if spec.Default != "" {
			d, err := model.ParsePole(spec.Default)
			if err != nil || d.Axis() != a {
				return errors.Mark(errors.Newf("axis %s default %q is not one of its poles", a, spec.Default), model.ErrTables)
			}
			def = d
		}
		t.defaults[a] = def
	}
	return nil
}

func (t *Tables) compileRanges() error {
	sort.SliceStable(t.Ranges, func(i, j int) bool { return t.Ranges[i].Start < t.Ranges[j].Start })
	for i, r := range t.Ranges {
		if r.Start > r.End {
			return errors.Mark(errors.Newf("birth year range %d..%d is inverted", r.Start, r.End), model.ErrTables)
		}
		if i == 0 {
			continue
		}
		prev := t.Ranges[i-1]
		if r.Start <= prev.End {
			return errors.Mark(errors.Newf("birth year ranges %d..%d and %d..%d overlap", prev.Start, prev.End, r.Start, r.End), model.ErrTables)
		}
		if r.Start != prev.End+1 {
			return errors.Mark(errors.Newf("gap between birth year ranges %d..%d and %d..%d", prev.Start, prev.End, r.Start, r.End), model.ErrTables)
		}
	}
	return nil
}

func (t *Tables) compileLexicons() error {
	for name, langs := range t.Lexicons {
		pole, err := model.ParsePole(name)
		if err != nil {
			return errors.Mark(errors.Wrapf(err, "lexicon %q", name), model.ErrTables)
		}
		seen := make(map[string]bool)
		for _, l := range t.keywords[pole] {
			seen[l] = true
		}
		for _, words := range langs {
			for _, w := range words {
				k := Fold(w)
				if k == "" || seen[k] {
					continue
				}
				seen[k] = true
				t.keywords[pole] = append(t.keywords[pole], k)
			}
		}
		sort.Strings(t.keywords[pole])
	}
	return nil
}

// String renders a short description for logs
func (t *Tables) String() string {
	return fmt.Sprintf("%s (%d eras, %d cultures, %d statuses, %d ranges)",
		t.ID(), len(t.Eras), len(t.Cultures), len(t.Statuses), len(t.Ranges))
}
