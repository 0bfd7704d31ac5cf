package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/pipeline"
	"github.com/ppiankov/archetype/internal/store"
	"github.com/ppiankov/archetype/internal/store/postgres"
	"github.com/ppiankov/archetype/internal/store/sqlite"
	"github.com/ppiankov/archetype/internal/worker"
	"github.com/spf13/cobra"
)

var (
	workers      int
	orderBy      string
	limit        int
	rps          float64
	burst        int
	outputDir    string
	storeDriver  string
	storeDSN     string
	batchTimeout time.Duration
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <facts.jsonl>",
	Short: "Infer archetypes for many entities from a JSON Lines file",
	Long: `Batch processes a JSON Lines facts file concurrently:
- Select entities with a deterministic policy (input, id or birth_year order, optional limit)
- Infer each entity in a bounded worker pool, throttled per ingestion source
- Isolate failures: one bad entity never stops the batch
- Optionally persist results (memory, sqlite, postgres) and write per-entity reports

Example:
  archetype batch facts.jsonl
  archetype batch facts.jsonl --workers 8 --order-by birth_year --limit 100
  archetype batch facts.jsonl --store sqlite --dsn archetype.db --output-dir ./reports`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	// Concurrency and selection flags
	batchCmd.Flags().IntVar(&workers, "workers", 4, "number of concurrent workers")
	batchCmd.Flags().StringVar(&orderBy, "order-by", worker.OrderID, "selection order (input, id, birth_year)")
	batchCmd.Flags().IntVar(&limit, "limit", 0, "process at most this many entities (0 = all)")
	batchCmd.Flags().Float64Var(&rps, "rps", 0, "dispatch rate per source (0 = unlimited)")
	batchCmd.Flags().IntVar(&burst, "burst", 5, "dispatch burst per source")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")

	// Output flags
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "", "write a JSON and Markdown report per entity")
	batchCmd.Flags().StringVar(&storeDriver, "store", "", "persist results (memory, sqlite, postgres)")
	batchCmd.Flags().StringVar(&storeDSN, "dsn", "", "store data source name")
	batchCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Engine flags
	batchCmd.Flags().StringVar(&tablesPath, "tables", "", "reference tables document (default: embedded)")
	batchCmd.Flags().BoolVar(&useCache, "cache", false, "enable the result cache")
	batchCmd.Flags().BoolVar(&concurrentExt, "concurrent-extractors", false, "run signal extractors in parallel")
	batchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "narrative provider (openai, ollama)")
	batchCmd.Flags().StringVar(&llmModel, "llm-model", "", "narrative model name")
}

func applyBatchFlags(cmd *cobra.Command, c *model.Config) {
	flags := cmd.Flags()
	if flags.Changed("workers") {
		c.Concurrency.Workers = workers
	}
	if flags.Changed("order-by") {
		c.Selection.OrderBy = orderBy
	}
	if flags.Changed("limit") {
		c.Selection.Limit = limit
	}
	if flags.Changed("rps") {
		c.RateLimiting.RequestsPerSecond = rps
	}
	if flags.Changed("burst") {
		c.RateLimiting.BurstSize = burst
	}
	if flags.Changed("store") {
		c.Store.Driver = storeDriver
	}
	if flags.Changed("dsn") {
		c.Store.DSN = storeDSN
	}
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	applyEngineFlags(cmd, cfg)
	applyBatchFlags(cmd, cfg)

	policy, err := worker.ParseSelectionPolicy(cfg.Selection.OrderBy, cfg.Selection.Limit)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Archetype Batch Inference\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", cfg.Concurrency.Workers)
	fmt.Fprintf(os.Stderr, "  Selection:    %s", policy.OrderBy)
	if policy.Limit > 0 {
		fmt.Fprintf(os.Stderr, " (limit %d)", policy.Limit)
	}
	fmt.Fprintf(os.Stderr, "\n")
	if cfg.Store.Driver != "" {
		fmt.Fprintf(os.Stderr, "  Store:        %s\n", cfg.Store.Driver)
	}
	if outputDir != "" {
		fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	}
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	fmt.Fprintf(os.Stderr, "\n")

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return errors.Wrap(err, "create pipeline")
	}
	fmt.Fprintf(os.Stderr, "  Tables:       %s\n", p.Tables())
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	s, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	if s != nil {
		defer func() { _ = s.Close() }()
	}

	if outputDir != "" {
		if err := os.MkdirAll(outputDir, 0755); err != nil {
			return errors.Wrap(err, "create output directory")
		}
	}

	fmt.Fprintf(os.Stderr, "⚙️  Reading facts from file...\n")
	facts, err := worker.ReadFactsFromFile(file)
	if err != nil {
		return errors.Wrap(err, "read facts")
	}
	fmt.Fprintf(os.Stderr, "✓ Loaded %d entities\n", len(facts))
	fmt.Fprintf(os.Stderr, "\n")

	processor := worker.NewBatchProcessor(p, cfg.Concurrency.Workers, cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize).
		WithSourceRates(cfg.RateLimiting.Sources)
	if s != nil {
		processor.WithStore(s)
	}

	start := time.Now()
	report := processor.Process(ctx, facts, policy)
	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)

	for _, r := range report.Results {
		switch {
		case r.Skipped:
			fmt.Fprintf(os.Stderr, "- %s: skipped\n", r.EntityID)
			continue
		case r.Error != nil && r.Result == nil:
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.EntityID, r.Error)
			continue
		case r.Error != nil:
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", r.EntityID, r.Error)
		}

		renderer.RenderSummary(os.Stdout, r.Result)

		if outputDir == "" {
			continue
		}
		slug := sanitizeFilename(r.EntityID)
		if err := renderer.RenderJSON(r.Result, filepath.Join(outputDir, slug+".json")); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write JSON: %v\n", r.EntityID, err)
			continue
		}
		if err := renderer.RenderMarkdown(r.Result, filepath.Join(outputDir, slug+".md")); err != nil {
			fmt.Fprintf(os.Stderr, "✗ %s: failed to write Markdown: %v\n", r.EntityID, err)
		}
	}

	// Summary
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Run:       %s\n", report.RunID)
	fmt.Fprintf(os.Stderr, "  Selected:  %d of %d entities\n", len(report.Results), len(facts))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", report.Succeeded)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", report.Failed)
	if report.Skipped > 0 {
		fmt.Fprintf(os.Stderr, "  Skipped:   %d\n", report.Skipped)
	}
	if s != nil {
		fmt.Fprintf(os.Stderr, "  Stored:    %d\n", report.Stored)
	}
	fmt.Fprintf(os.Stderr, "  Faults:    %d extractor faults (%d since start)\n", report.Faults, p.Faults())
	fmt.Fprintf(os.Stderr, "  Duration:  %v\n", time.Since(start).Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "\n")

	if report.Skipped > 0 {
		return errors.Newf("batch interrupted: %d entities not processed", report.Skipped)
	}
	return nil
}

// openStore opens the configured persistence collaborator. An empty driver
// returns (nil, nil).
func openStore(ctx context.Context, c model.StoreConfig) (store.Store, error) {
	switch strings.ToLower(c.Driver) {
	case "":
		return nil, nil
	case "memory":
		return store.NewMemoryStore(), nil
	case "sqlite":
		dsn := c.DSN
		if dsn == "" {
			dsn = "archetype.db"
		}
		s, err := sqlite.Open(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres", "postgresql":
		if c.DSN == "" {
			return nil, errors.New("postgres store requires a dsn")
		}
		s, err := postgres.Open(ctx, c.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.Newf("unknown store driver %q (use memory, sqlite or postgres)", c.Driver)
	}
}

var filenameReplacer = strings.NewReplacer(
	"/", "_",
	"\\", "_",
	":", "_",
	"*", "_",
	"?", "_",
	"\"", "_",
	"<", "_",
	">", "_",
	"|", "_",
	" ", "-",
)

// sanitizeFilename sanitizes an entity id for use as a filename
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.TrimSpace(s))
	if s == "" || s == "." || s == ".." {
		s = "entity"
	}

	// Limit length
	if len(s) > 100 {
		s = s[:100]
	}

	return s
}
