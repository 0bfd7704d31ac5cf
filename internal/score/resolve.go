package score

import (
	"math"

	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

const (
	primaryBase     = 0.6
	primaryCeiling  = 0.85
	primaryDivisor  = 400.0
	secondaryBase   = 0.2
	secondaryFactor = 0.1
)

// Resolution is the resolved reading of a profile
type Resolution struct {
	Primary         string
	Secondary       string
	HasSecondary    bool
	Dominant        [model.AxisCount]model.Pole
	Margins         [model.AxisCount]int
	Weakest         model.Axis
	PrimaryWeight   float64
	SecondaryWeight float64
}

// Types returns the type codes with weights, primary first
func (r Resolution) Types() []model.TypeWeight {
	types := []model.TypeWeight{{Code: r.Primary, Weight: r.PrimaryWeight, Rank: model.RankPrimary}}
	if r.HasSecondary {
		types = append(types, model.TypeWeight{Code: r.Secondary, Weight: r.SecondaryWeight, Rank: model.RankSecondary})
	}
	return types
}

// Resolver derives primary and secondary type codes from a profile
type Resolver struct {
	defaults  [model.AxisCount]model.Pole
	threshold int
}

// NewResolver creates a resolver using the table tie defaults and ambiguity threshold
func NewResolver(t *tables.Tables) *Resolver {
	r := &Resolver{threshold: t.Ambiguity.Threshold}
	for _, a := range model.AllAxes() {
		r.defaults[a] = t.Default(a)
	}
	return r
}

// Resolve picks the dominant pole of each axis (ties go to the axis default)
// and flips the weakest axis into a secondary code when its margin is below
// the ambiguity threshold. A fully neutral profile has no secondary.
func (r *Resolver) Resolve(p model.Profile) Resolution {
	var res Resolution
	code := make([]byte, model.AxisCount)
	total := 0

	for _, a := range model.AllAxes() {
		first, second := p[a.First()], p[a.Second()]
		switch {
		case first > second:
			res.Dominant[a] = a.First()
		case second > first:
			res.Dominant[a] = a.Second()
		default:
			res.Dominant[a] = r.defaults[a]
		}
		code[a] = res.Dominant[a].Char()

		res.Margins[a] = p.Margin(a)
		total += res.Margins[a]
		if res.Margins[a] < res.Margins[res.Weakest] {
			res.Weakest = a
		}
	}

	res.Primary = string(code)
	res.PrimaryWeight = round4(math.Min(primaryCeiling, primaryBase+float64(total)/primaryDivisor))

	weakest := res.Margins[res.Weakest]
	if weakest < r.threshold && total > 0 {
		flipped := append([]byte(nil), code...)
		flipped[res.Weakest] = res.Weakest.FlipChar(code[res.Weakest])
		res.Secondary = string(flipped)
		res.HasSecondary = true
		res.SecondaryWeight = round4(secondaryBase + (1-float64(weakest)/100)*secondaryFactor)
	}

	return res
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
