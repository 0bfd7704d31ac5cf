package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/ppiankov/archetype/internal/logging"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/store"
	"go.uber.org/zap"
)

// Inferer produces a result for one entity
type Inferer interface {
	Infer(ctx context.Context, facts model.EntityFacts) (*model.Result, error)
}

// InferJob infers, stamps and optionally stores one entity
type InferJob struct {
	Facts   model.EntityFacts
	Inferer Inferer
	RunID   string
	Store   store.Store // nil disables persistence
}

// Execute executes the inference job
func (j *InferJob) Execute(ctx context.Context) Result {
	res := &InferResult{EntityID: j.Facts.ID}

	r, err := j.Inferer.Infer(ctx, j.Facts)
	if err != nil {
		res.Error = err
		return res
	}
	r.RunID = j.RunID
	res.Result = r

	if j.Store != nil {
		written, err := j.Store.Upsert(ctx, r)
		if err != nil {
			res.Error = errors.Wrapf(err, "store result %s", j.Facts.ID)
			return res
		}
		res.Stored = written
	}

	return res
}

// InferResult is the outcome of one batch entity. Result may be set even when
// Error is, if inference succeeded but persistence failed.
type InferResult struct {
	EntityID string
	Result   *model.Result
	Error    error
	Stored   bool
	Skipped  bool // Never dispatched because the batch was cancelled
}

// GetError returns the error from the inference result
func (r *InferResult) GetError() error {
	return r.Error
}

// BatchReport summarizes a batch run. Results follow selection order.
type BatchReport struct {
	RunID     string
	Results   []*InferResult
	Succeeded int
	Failed    int
	Skipped   int
	Stored    int
	Faults    int // Extractor faults across all results
}

// Selection orderings
const (
	OrderInput     = "input"
	OrderID        = "id"
	OrderBirthYear = "birth_year"
)

// SelectionPolicy is the deterministic choice and order of batch entities
type SelectionPolicy struct {
	OrderBy string
	Limit   int // 0 means no limit
}

// ParseSelectionPolicy validates an ordering name and limit
func ParseSelectionPolicy(orderBy string, limit int) (SelectionPolicy, error) {
	if orderBy == "" {
		orderBy = OrderInput
	}
	switch orderBy {
	case OrderInput, OrderID, OrderBirthYear:
	default:
		return SelectionPolicy{}, errors.Newf("unknown selection order %q (use input, id or birth_year)", orderBy)
	}
	if limit < 0 {
		return SelectionPolicy{}, errors.Newf("selection limit must not be negative, got %d", limit)
	}
	return SelectionPolicy{OrderBy: orderBy, Limit: limit}, nil
}

// Apply returns the selected entities without modifying facts. Sorting is
// stable, so equal keys keep input order; entities without a birth year sort
// last under birth_year ordering.
func (s SelectionPolicy) Apply(facts []model.EntityFacts) []model.EntityFacts {
	selected := make([]model.EntityFacts, len(facts))
	copy(selected, facts)

	switch s.OrderBy {
	case OrderID:
		sort.SliceStable(selected, func(i, j int) bool {
			return selected[i].ID < selected[j].ID
		})
	case OrderBirthYear:
		sort.SliceStable(selected, func(i, j int) bool {
			a, b := selected[i].BirthYear, selected[j].BirthYear
			if a == nil || b == nil {
				return a != nil && b == nil
			}
			return *a < *b
		})
	}

	if s.Limit > 0 && len(selected) > s.Limit {
		selected = selected[:s.Limit]
	}
	return selected
}

// BatchProcessor processes multiple entities concurrently
type BatchProcessor struct {
	inferer     Inferer
	concurrency int
	limiter     *Limiter
	store       store.Store
	log         *zap.SugaredLogger
}

// NewBatchProcessor creates a new batch processor. requestsPerSecond <= 0
// disables dispatch throttling.
func NewBatchProcessor(inferer Inferer, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	return &BatchProcessor{
		inferer:     inferer,
		concurrency: concurrency,
		limiter:     NewLimiter(requestsPerSecond, burst),
		log:         logging.Named("worker"),
	}
}

// WithStore persists every successful result through s
func (b *BatchProcessor) WithStore(s store.Store) *BatchProcessor {
	b.store = s
	return b
}

// WithSourceRates throttles each named source at its own rate instead of the
// global one
func (b *BatchProcessor) WithSourceRates(sources map[string]model.SourceRateConfig) *BatchProcessor {
	for source, r := range sources {
		b.limiter.SetSourceRate(source, r.RequestsPerSecond, r.BurstSize)
	}
	return b
}

// Process selects entities with policy and infers them concurrently.
// Per-entity errors and panics stay on that entity's InferResult. Cancelling
// ctx stops dispatch; entities not yet dispatched are reported as skipped.
func (b *BatchProcessor) Process(ctx context.Context, facts []model.EntityFacts, policy SelectionPolicy) *BatchReport {
	selected := policy.Apply(facts)
	report := &BatchReport{
		RunID:   uuid.NewString(),
		Results: make([]*InferResult, len(selected)),
	}
	if len(selected) == 0 {
		return report
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	for _, f := range selected {
		if err := b.limiter.Wait(ctx, f.Source); err != nil {
			break
		}
		job := &InferJob{
			Facts:   f,
			Inferer: b.inferer,
			RunID:   report.RunID,
			Store:   b.store,
		}
		if !pool.Submit(job) {
			break
		}
	}

	results := pool.Wait()

	for i, f := range selected {
		var res *InferResult
		if i < len(results) {
			res = toInferResult(f.ID, results[i])
		} else {
			res = &InferResult{EntityID: f.ID, Error: errors.Wrap(context.Cause(ctx), "not dispatched"), Skipped: true}
		}
		report.Results[i] = res

		switch {
		case res.Skipped:
			report.Skipped++
		case res.Error != nil:
			report.Failed++
			b.log.Warnw("entity failed", "entity", res.EntityID, "error", res.Error)
		default:
			report.Succeeded++
		}
		if res.Stored {
			report.Stored++
		}
		if res.Result != nil {
			report.Faults += len(res.Result.Faults)
		}
	}

	b.log.Infow("batch complete", "run", report.RunID, "selected", len(selected),
		"succeeded", report.Succeeded, "failed", report.Failed, "skipped", report.Skipped)
	return report
}

func toInferResult(id string, r Result) *InferResult {
	switch v := r.(type) {
	case *InferResult:
		return v
	case nil:
		return &InferResult{EntityID: id, Error: errors.New("job produced no result")}
	default:
		return &InferResult{EntityID: id, Error: v.GetError()}
	}
}

// LineError reports a malformed line in a facts file
type LineError struct {
	Line int
	Err  error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *LineError) Unwrap() error {
	return e.Err
}

// ReadFactsFromFile reads entity facts from a JSON Lines file
func ReadFactsFromFile(filePath string) ([]model.EntityFacts, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "open facts file")
	}
	defer func() { _ = file.Close() }()

	return ReadFacts(file)
}

// ReadFacts reads JSON Lines facts. Blank lines and # comments are skipped;
// for duplicate ids the first occurrence wins.
func ReadFacts(r io.Reader) ([]model.EntityFacts, error) {
	var facts []model.EntityFacts
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var f model.EntityFacts
		if err := json.Unmarshal([]byte(line), &f); err != nil {
			return nil, &LineError{Line: lineNo, Err: err}
		}

		// Blank ids are kept so the engine can reject them per entity
		if id := strings.TrimSpace(f.ID); id != "" {
			if seen[id] {
				logging.Named("worker").Debugw("duplicate entity skipped", "entity", id, "line", lineNo)
				continue
			}
			seen[id] = true
		}
		facts = append(facts, f)
	}

	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "scan facts file")
	}

	return facts, nil
}
