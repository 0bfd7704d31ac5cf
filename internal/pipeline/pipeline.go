// Package pipeline assembles results: it runs the signal extractors for one
// entity, aggregates, resolves, estimates confidence and writes the
// reasoning trace.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/cache"
	"github.com/ppiankov/archetype/internal/extract"
	"github.com/ppiankov/archetype/internal/llm"
	"github.com/ppiankov/archetype/internal/logging"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/score"
	"github.com/ppiankov/archetype/internal/tables"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Narrator attaches optional prose to a finished result
type Narrator interface {
	Narrate(ctx context.Context, r *model.Result) (*model.Narrative, error)
}

// Pipeline orchestrates inference for single entities.
// It is safe for concurrent use; the tables are never mutated.
type Pipeline struct {
	tables     *tables.Tables
	extractors []extract.Extractor
	aggregator *score.Aggregator
	resolver   *score.Resolver
	estimator  *score.Estimator
	cache      *cache.ResultCache // nil when disabled
	narrator   Narrator           // nil when disabled
	concurrent bool
	faults     atomic.Int64
	log        *zap.SugaredLogger
}

// Option configures a Pipeline
type Option func(*Pipeline)

// WithCache enables the result cache
func WithCache(c *cache.ResultCache) Option {
	return func(p *Pipeline) { p.cache = c }
}

// WithNarrator enables narration
func WithNarrator(n Narrator) Option {
	return func(p *Pipeline) { p.narrator = n }
}

// WithConcurrentExtractors runs the extractors of one entity in parallel
func WithConcurrentExtractors(on bool) Option {
	return func(p *Pipeline) { p.concurrent = on }
}

// WithExtractors replaces the standard extractor set
func WithExtractors(extractors ...extract.Extractor) Option {
	return func(p *Pipeline) { p.extractors = extractors }
}

// New creates a pipeline over the given tables
func New(t *tables.Tables, opts ...Option) *Pipeline {
	p := &Pipeline{
		tables:     t,
		extractors: extract.Standard(t),
		aggregator: score.NewAggregator(t),
		resolver:   score.NewResolver(t),
		estimator:  score.NewEstimator(t),
		log:        logging.Named("pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPipeline creates a pipeline from configuration. Table errors are fatal;
// a narrator that cannot be built is logged and skipped.
func NewPipeline(cfg *model.Config) (*Pipeline, error) {
	t, err := tables.Load(cfg.Tables.Path)
	if err != nil {
		return nil, err
	}

	opts := []Option{WithConcurrentExtractors(cfg.Engine.ConcurrentExtractors)}
	if rc := cache.FromConfig(cfg.Cache); rc != nil {
		opts = append(opts, WithCache(rc))
	}
	if cfg.LLM.Provider != "" {
		n, err := llm.NewNarrator(llm.ConfigFromModel(cfg.LLM))
		if err != nil {
			logging.Named("pipeline").Warnw("narrator disabled", "provider", cfg.LLM.Provider, "error", err)
		} else {
			opts = append(opts, WithNarrator(n))
		}
	}

	return New(t, opts...), nil
}

// Tables returns the reference tables in use
func (p *Pipeline) Tables() *tables.Tables {
	return p.tables
}

// Faults returns the number of extractor faults recorded since creation
func (p *Pipeline) Faults() int64 {
	return p.faults.Load()
}

type outcome struct {
	contribution model.Contribution
	err          error
}

// Infer produces the result for one entity. The only error returned for
// well-formed calls is an input error (missing id, marked model.ErrInput);
// extractor faults are recorded on the result instead.
func (p *Pipeline) Infer(ctx context.Context, facts model.EntityFacts) (*model.Result, error) {
	if err := facts.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	tableID := p.tables.ID()

	result, cached := p.cached(facts, tableID)
	if !cached {
		result = p.assemble(facts, tableID)
		if p.cache != nil && len(result.Faults) == 0 {
			if err := p.cache.Put(facts, tableID, result); err != nil {
				p.log.Warnw("cache write failed", "entity", facts.ID, "error", err)
			}
		}
	}

	if p.narrator != nil {
		narrative, err := p.narrator.Narrate(ctx, result)
		if err != nil {
			p.log.Warnw("narrative failed", "entity", facts.ID, "error", err)
		} else {
			result.Narrative = narrative
		}
	}

	return result, nil
}

func (p *Pipeline) cached(facts model.EntityFacts, tableID string) (*model.Result, bool) {
	if p.cache == nil {
		return nil, false
	}
	r, ok := p.cache.Get(facts, tableID)
	if ok {
		p.log.Debugw("cache hit", "entity", facts.ID)
	}
	return r, ok
}

func (p *Pipeline) assemble(facts model.EntityFacts, tableID string) *model.Result {
	r := &model.Result{
		EntityID:     facts.ID,
		Provenance:   []model.Provenance{},
		Reasoning:    []string{"reference tables " + tableID},
		TableVersion: tableID,
	}

	var contributions []model.Contribution
	for i, o := range p.extract(facts) {
		if o.err != nil {
			msg := fmt.Sprintf("%s extractor fault: %v", p.extractors[i].Name(), o.err)
			r.Faults = append(r.Faults, msg)
			r.Reasoning = append(r.Reasoning, msg)
			p.faults.Add(1)
			p.log.Warnw("extractor fault", "entity", facts.ID, "extractor", p.extractors[i].Name(), "error", o.err)
			continue
		}
		contributions = append(contributions, o.contribution)
		r.Reasoning = append(r.Reasoning, o.contribution.Notes...)
		if o.contribution.Fired && !r.HasProvenance(o.contribution.Provenance) {
			r.Provenance = append(r.Provenance, o.contribution.Provenance)
		}
	}
	if len(r.Provenance) == 0 {
		r.Reasoning = append(r.Reasoning, "no signals fired; profile stays at the neutral baseline")
	}

	r.Profile = p.aggregator.Aggregate(contributions)
	res := p.resolver.Resolve(r.Profile)
	est := p.estimator.Estimate(contributions, r.Profile)

	r.Types = res.Types()
	r.Confidence = est.Value
	r.Reasoning = append(r.Reasoning, p.describeTypes(res), est.String())

	return r
}

// extract runs every extractor, sequentially or concurrently. Outcomes keep
// extractor order either way, so results do not depend on scheduling.
func (p *Pipeline) extract(facts model.EntityFacts) []outcome {
	outcomes := make([]outcome, len(p.extractors))

	if !p.concurrent {
		for i, e := range p.extractors {
			outcomes[i].contribution, outcomes[i].err = safeExtract(e, facts)
		}
		return outcomes
	}

	// Faults stay on their outcome; one failing extractor must not cancel the rest
	var g errgroup.Group
	for i, e := range p.extractors {
		i, e := i, e
		g.Go(func() error {
			outcomes[i].contribution, outcomes[i].err = safeExtract(e, facts)
			return nil
		})
	}
	g.Wait()
	return outcomes
}

// safeExtract converts errors and panics into extractor faults
func safeExtract(e extract.Extractor, facts model.EntityFacts) (c model.Contribution, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			c = model.Contribution{}
			err = errors.Newf("panic: %v", rec)
		}
		if err != nil {
			err = errors.Mark(err, model.ErrExtractorFault)
		}
	}()
	return e.Extract(facts)
}

func (p *Pipeline) describeTypes(res score.Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "primary type %s (weight %.4g)", res.Primary, res.PrimaryWeight)

	threshold := p.tables.Ambiguity.Threshold
	weakest := res.Margins[res.Weakest]
	switch {
	case res.HasSecondary:
		fmt.Fprintf(&b, "; secondary type %s (weight %.4g): %s margin %d is below %d",
			res.Secondary, res.SecondaryWeight, res.Weakest, weakest, threshold)
	case weakest < threshold:
		b.WriteString("; no secondary type: every axis is neutral")
	default:
		fmt.Fprintf(&b, "; no secondary type: weakest margin %d (%s) reaches %d", weakest, res.Weakest, threshold)
	}
	return b.String()
}
