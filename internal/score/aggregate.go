// Package score turns extractor contributions into a profile, resolves the
// type codes and estimates confidence. Nothing in this package returns an
// error: every function is total over its input.
package score

import (
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

// Aggregator folds contributions into a bounded, sum-consistent profile
type Aggregator struct {
	lower int
	upper int
}

// NewAggregator creates an aggregator using the table bounds
func NewAggregator(t *tables.Tables) *Aggregator {
	return &Aggregator{lower: t.Bounds.Lower, upper: t.Bounds.Upper}
}

// Aggregate starts from a fresh baseline, sums the deltas of every fired
// contribution, clamps, and derives each second pole from its first.
// The clamp/restore pass runs twice so both invariants hold on exit.
func (a *Aggregator) Aggregate(contributions []model.Contribution) model.Profile {
	p := model.Baseline()

	for _, c := range contributions {
		if !c.Fired {
			continue
		}
		for i, d := range c.Deltas {
			p[i] += d
		}
	}

	for pass := 0; pass < 2; pass++ {
		a.clamp(&p)
		restore(&p)
	}

	return p
}

func (a *Aggregator) clamp(p *model.Profile) {
	for i, v := range p {
		if v < a.lower {
			p[i] = a.lower
		} else if v > a.upper {
			p[i] = a.upper
		}
	}
}

func restore(p *model.Profile) {
	for _, axis := range model.AllAxes() {
		p[axis.Second()] = model.AxisTotal - p[axis.First()]
	}
}
