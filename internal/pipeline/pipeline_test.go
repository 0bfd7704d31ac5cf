package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/cache"
	"github.com/ppiankov/archetype/internal/extract"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/tables"
)

const salonBiography = "She ran a salon in Paris, kept a lifelong friendship with poets, and led a collective of painters who met there."

type stubExtractor struct {
	name  string
	calls atomic.Int32
	fn    func(model.EntityFacts) (model.Contribution, error)
}

func (s *stubExtractor) Name() string { return s.name }

func (s *stubExtractor) Extract(f model.EntityFacts) (model.Contribution, error) {
	s.calls.Add(1)
	return s.fn(f)
}

type stubNarrator struct {
	narrative *model.Narrative
	err       error
}

func (s *stubNarrator) Narrate(ctx context.Context, r *model.Result) (*model.Narrative, error) {
	return s.narrative, s.err
}

func newTestPipeline(t *testing.T, opts ...Option) *Pipeline {
	t.Helper()
	return New(tables.MustDefault(), opts...)
}

func checkInvariants(t *testing.T, p model.Profile) {
	t.Helper()
	for _, a := range model.AllAxes() {
		if p[a.First()]+p[a.Second()] != model.AxisTotal {
			t.Errorf("axis %s does not sum to %d: %v", a, model.AxisTotal, p)
		}
	}
	for _, pole := range model.AllPoles() {
		if p[pole] < 10 || p[pole] > 90 {
			t.Errorf("pole %s out of bounds: %d", pole, p[pole])
		}
	}
}

func TestInfer_RenaissanceEra(t *testing.T) {
	p := newTestPipeline(t)

	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a1", EraLabel: "Renaissance"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if r.Profile[model.Structured] != 70 || r.Profile[model.Fluid] != 30 {
		t.Errorf("expected Structured 70 / Fluid 30, got %v", r.Profile)
	}
	if r.Confidence != 0.6 {
		t.Errorf("expected confidence 0.6, got %v", r.Confidence)
	}
	if len(r.Provenance) != 1 || r.Provenance[0] != model.ProvenanceEra {
		t.Errorf("expected provenance [era_pattern], got %v", r.Provenance)
	}
	if r.Primary() != "INFJ" {
		t.Errorf("expected primary INFJ, got %s", r.Primary())
	}
	if r.Reasoning[0] != "reference tables default@1.0.0" {
		t.Errorf("expected table version first in trace, got %q", r.Reasoning[0])
	}
	if !strings.Contains(r.Reasoning[1], `era "Renaissance" applied dominant-pole pattern Structured`) {
		t.Errorf("expected era sentence, got %q", r.Reasoning[1])
	}
	if r.TableVersion != "default@1.0.0" {
		t.Errorf("unexpected table version %q", r.TableVersion)
	}
	checkInvariants(t, r.Profile)
}

func TestInfer_SalonBiography(t *testing.T) {
	p := newTestPipeline(t)

	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a2", Biography: salonBiography})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if r.Profile[model.Social] != 65 || r.Profile[model.Solitary] != 35 {
		t.Errorf("expected Social 65 / Solitary 35, got %v", r.Profile)
	}
	if !r.HasProvenance(model.ProvenanceBiography) || len(r.Provenance) != 1 {
		t.Errorf("expected provenance [biography_text_analysis], got %v", r.Provenance)
	}
	if r.Confidence != 0.525 {
		t.Errorf("expected confidence 0.525, got %v", r.Confidence)
	}
	if r.Primary() != "ENFP" {
		t.Errorf("expected primary ENFP, got %s", r.Primary())
	}
}

func TestInfer_IDOnly(t *testing.T) {
	p := newTestPipeline(t)

	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a3"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if r.Profile != model.Baseline() {
		t.Errorf("expected neutral baseline, got %v", r.Profile)
	}
	if r.Confidence != 0.4 {
		t.Errorf("expected base confidence 0.4, got %v", r.Confidence)
	}
	if len(r.Provenance) != 0 {
		t.Errorf("expected empty provenance, got %v", r.Provenance)
	}
	if _, ok := r.Secondary(); ok {
		t.Error("expected no secondary type")
	}
	if r.Primary() != "INFP" {
		t.Errorf("expected tie-default primary INFP, got %s", r.Primary())
	}
}

func TestInfer_RejectsMissingID(t *testing.T) {
	p := newTestPipeline(t)

	for _, id := range []string{"", "   "} {
		r, err := p.Infer(context.Background(), model.EntityFacts{ID: id, EraLabel: "Renaissance"})
		if err == nil {
			t.Fatalf("id %q: expected error", id)
		}
		if !errors.Is(err, model.ErrInput) {
			t.Errorf("id %q: expected input error, got %v", id, err)
		}
		if r != nil {
			t.Errorf("id %q: expected no result", id)
		}
	}
}

func TestInfer_Deterministic(t *testing.T) {
	facts := model.EntityFacts{
		ID:           "a4",
		Biography:    "<p>A restless, bohemian painter whose <i>spontaneous</i> gallery shows and visionary dream imagery drew a devoted circle of friends.</p>",
		EraLabel:     "Expressionism",
		CultureLabel: "German",
		StatusLabel:  "deceased",
		BirthYear:    model.Year(1880),
	}

	sequential := newTestPipeline(t)
	concurrent := newTestPipeline(t, WithConcurrentExtractors(true))

	first, err := sequential.Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	want, _ := json.Marshal(first)

	for i := 0; i < 20; i++ {
		for _, p := range []*Pipeline{sequential, concurrent} {
			r, err := p.Infer(context.Background(), facts)
			if err != nil {
				t.Fatalf("Infer failed: %v", err)
			}
			got, _ := json.Marshal(r)
			if !bytes.Equal(got, want) {
				t.Fatalf("non-deterministic output:\n%s\n%s", got, want)
			}
		}
	}
	checkInvariants(t, first.Profile)
	if len(first.Provenance) != 5 {
		t.Errorf("expected all five extractors to fire, got %v", first.Provenance)
	}
}

func TestInfer_ExtractorFaultIsolation(t *testing.T) {
	tbl := tables.MustDefault()

	panicky := &stubExtractor{name: "panicky", fn: func(model.EntityFacts) (model.Contribution, error) {
		panic("index out of range")
	}}
	broken := &stubExtractor{name: "broken", fn: func(model.EntityFacts) (model.Contribution, error) {
		return model.Contribution{}, errors.New("lookup failed")
	}}

	for _, concurrent := range []bool{false, true} {
		extractors := append(extract.Standard(tbl), panicky, broken)
		p := New(tbl, WithExtractors(extractors...), WithConcurrentExtractors(concurrent))

		r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a5", EraLabel: "Renaissance"})
		if err != nil {
			t.Fatalf("concurrent=%v: expected faults to be absorbed, got %v", concurrent, err)
		}
		if len(r.Faults) != 2 {
			t.Fatalf("concurrent=%v: expected 2 faults, got %v", concurrent, r.Faults)
		}
		if !strings.HasPrefix(r.Faults[0], "panicky extractor fault: panic: index out of range") {
			t.Errorf("unexpected fault text %q", r.Faults[0])
		}
		if !strings.HasPrefix(r.Faults[1], "broken extractor fault: lookup failed") {
			t.Errorf("unexpected fault text %q", r.Faults[1])
		}
		if r.Confidence != 0.6 || r.Profile[model.Structured] != 70 {
			t.Errorf("expected healthy extractors to still count, got confidence %v profile %v", r.Confidence, r.Profile)
		}
		if p.Faults() != 2 {
			t.Errorf("expected fault counter 2, got %d", p.Faults())
		}

		traced := 0
		for _, line := range r.Reasoning {
			if strings.Contains(line, "extractor fault") {
				traced++
			}
		}
		if traced != 2 {
			t.Errorf("expected both faults in the trace, got %d", traced)
		}
	}
}

func TestInfer_FaultDoesNotCancelSlowerExtractors(t *testing.T) {
	tbl := tables.MustDefault()

	broken := &stubExtractor{name: "broken", fn: func(model.EntityFacts) (model.Contribution, error) {
		return model.Contribution{}, errors.New("lookup failed")
	}}
	slow := &stubExtractor{name: "era", fn: func(f model.EntityFacts) (model.Contribution, error) {
		time.Sleep(20 * time.Millisecond)
		return extract.NewEraExtractor(tbl).Extract(f)
	}}

	p := New(tbl, WithExtractors(broken, slow), WithConcurrentExtractors(true))
	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a7", EraLabel: "Renaissance"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(r.Faults) != 1 {
		t.Errorf("expected one fault, got %v", r.Faults)
	}
	if !r.HasProvenance(model.ProvenanceEra) || r.Profile[model.Structured] != 70 {
		t.Errorf("expected the slower era extractor to complete, got %v %v", r.Provenance, r.Profile)
	}
}

func TestInfer_ExplicitZeroTableValues(t *testing.T) {
	tbl, err := tables.Parse([]byte(`
name: quiet
version: "1"
magnitudes: {status: 0}
ambiguity:  {threshold: 0}
eras:
  - label: Renaissance
    poles: [Structured]
statuses:
  - label: living
    poles: [Social]
`), tables.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p := New(tbl)
	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a8", EraLabel: "Renaissance", StatusLabel: "living"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if r.Profile[model.Social] != 50 {
		t.Errorf("expected a zero status magnitude to leave Social at 50, got %v", r.Profile)
	}
	if r.Profile[model.Structured] != 70 {
		t.Errorf("expected the era to still apply, got %v", r.Profile)
	}
	if code, ok := r.Secondary(); ok {
		t.Errorf("expected a zero ambiguity threshold to disable the secondary type, got %s", code)
	}
}

func TestInfer_TableFaultIsRecorded(t *testing.T) {
	tbl, err := tables.Parse([]byte(`
name: broken
version: "0.1"
eras:
  - label: Misspelt
    poles: [Sturctured]
`), tables.FormatYAML)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	p := New(tbl)
	r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a6", EraLabel: "Misspelt"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if len(r.Faults) != 1 || !strings.HasPrefix(r.Faults[0], "era extractor fault") {
		t.Errorf("expected an era fault, got %v", r.Faults)
	}
	if r.Profile != model.Baseline() || r.Confidence != 0.4 {
		t.Errorf("expected faulted extractor to be treated as absent, got %v / %v", r.Profile, r.Confidence)
	}
}

func TestInfer_CacheHit(t *testing.T) {
	tbl := tables.MustDefault()
	counting := &stubExtractor{name: "era", fn: extract.NewEraExtractor(tbl).Extract}
	rc := cache.NewResultCache(cache.NewMemoryCache(time.Minute, time.Minute), 0)

	p := New(tbl, WithExtractors(counting), WithCache(rc))
	facts := model.EntityFacts{ID: "a1", EraLabel: "Renaissance"}

	first, err := p.Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	second, err := p.Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	if counting.calls.Load() != 1 {
		t.Errorf("expected one extraction, got %d", counting.calls.Load())
	}
	a, _ := json.Marshal(first)
	b, _ := json.Marshal(second)
	if !bytes.Equal(a, b) {
		t.Errorf("cached result differs:\n%s\n%s", a, b)
	}
}

func TestInfer_FaultedResultsAreNotCached(t *testing.T) {
	broken := &stubExtractor{name: "broken", fn: func(model.EntityFacts) (model.Contribution, error) {
		return model.Contribution{}, errors.New("transient")
	}}
	rc := cache.NewResultCache(cache.NewMemoryCache(time.Minute, time.Minute), 0)
	p := newTestPipeline(t, WithExtractors(broken), WithCache(rc))

	for i := 0; i < 2; i++ {
		if _, err := p.Infer(context.Background(), model.EntityFacts{ID: "a1"}); err != nil {
			t.Fatalf("Infer failed: %v", err)
		}
	}
	if broken.calls.Load() != 2 {
		t.Errorf("expected faulted result to be recomputed, got %d calls", broken.calls.Load())
	}
}

func TestInfer_Narrative(t *testing.T) {
	facts := model.EntityFacts{ID: "a1", EraLabel: "Renaissance"}

	plain, err := newTestPipeline(t).Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}

	narrated, err := newTestPipeline(t, WithNarrator(&stubNarrator{
		narrative: &model.Narrative{Provider: "stub", Text: "Reads as INFJ."},
	})).Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	if narrated.Narrative == nil || narrated.Narrative.Text != "Reads as INFJ." {
		t.Fatalf("expected narrative to be attached, got %+v", narrated.Narrative)
	}

	narrated.Narrative = nil
	a, _ := json.Marshal(plain)
	b, _ := json.Marshal(narrated)
	if !bytes.Equal(a, b) {
		t.Errorf("narration changed scoring fields:\n%s\n%s", a, b)
	}

	failing, err := newTestPipeline(t, WithNarrator(&stubNarrator{err: errors.New("timeout")})).Infer(context.Background(), facts)
	if err != nil {
		t.Fatalf("expected narrator failure to be non-fatal, got %v", err)
	}
	if failing.Narrative != nil {
		t.Error("expected no narrative after narrator failure")
	}
}

func TestInfer_ConcurrentCallers(t *testing.T) {
	p := newTestPipeline(t, WithConcurrentExtractors(true))

	var wg sync.WaitGroup
	results := make([]*model.Result, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := p.Infer(context.Background(), model.EntityFacts{ID: "a1", EraLabel: "Baroque", BirthYear: model.Year(1606)})
			if err != nil {
				t.Errorf("Infer failed: %v", err)
				return
			}
			results[i] = r
		}(i)
	}
	wg.Wait()

	for _, r := range results[1:] {
		if r == nil || results[0] == nil || r.Profile != results[0].Profile || r.Confidence != results[0].Confidence {
			t.Fatal("expected identical results across concurrent callers")
		}
	}
}

func TestInfer_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := newTestPipeline(t).Infer(ctx, model.EntityFacts{ID: "a1"}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestNewPipeline_FromConfig(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.Cache.Enabled = true
	cfg.Cache.Dir = t.TempDir()

	p, err := NewPipeline(cfg)
	if err != nil {
		t.Fatalf("NewPipeline failed: %v", err)
	}
	if p.Tables().ID() != "default@1.0.0" {
		t.Errorf("expected default tables, got %s", p.Tables().ID())
	}
	if p.cache == nil {
		t.Error("expected cache to be enabled")
	}

	cfg.Tables.Path = "/nonexistent/tables.yaml"
	if _, err := NewPipeline(cfg); !errors.Is(err, model.ErrTables) {
		t.Errorf("expected tables error, got %v", err)
	}
}
