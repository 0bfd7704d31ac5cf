package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
	"github.com/ppiankov/archetype/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	factsPath     string
	entityID      string
	biography     string
	biographyFile string
	eraLabel      string
	cultureLabel  string
	statusLabel   string
	birthYear     int
	source        string
	outJSON       string
	outMD         string
	timeout       time.Duration
	tablesPath    string
	useCache      bool
	noFooter      bool
	concurrentExt bool
	llmProvider   string
	llmModel      string
)

// inferCmd represents the infer command
var inferCmd = &cobra.Command{
	Use:   "infer",
	Short: "Infer the archetype of a single entity",
	Long: `Infer reads the facts for one entity, either from flags or from a JSON
document, and prints a one-line summary. The full result can be written as
JSON and as a Markdown report.

Example:
  archetype infer --id leonardo --era Renaissance --culture Italian --birth-year 1452
  archetype infer --facts entity.json --json result.json --md result.md
  archetype infer --id a1 --biography-file bio.html --json -`,
	Args: cobra.NoArgs,
	RunE: runInfer,
}

func init() {
	rootCmd.AddCommand(inferCmd)

	// Input flags
	inferCmd.Flags().StringVar(&factsPath, "facts", "", "read facts from a JSON file (- for stdin)")
	inferCmd.Flags().StringVar(&entityID, "id", "", "entity id")
	inferCmd.Flags().StringVar(&biography, "biography", "", "biography text")
	inferCmd.Flags().StringVar(&biographyFile, "biography-file", "", "read the biography from a text or HTML file")
	inferCmd.Flags().StringVar(&eraLabel, "era", "", "era or movement label")
	inferCmd.Flags().StringVar(&cultureLabel, "culture", "", "culture or origin label")
	inferCmd.Flags().StringVar(&statusLabel, "status", "", "status label (living, deceased)")
	inferCmd.Flags().IntVar(&birthYear, "birth-year", 0, "birth year")
	inferCmd.Flags().StringVar(&source, "source", "", "ingestion source tag (not scored)")

	// Output flags
	inferCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (- for stdout)")
	inferCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path")
	inferCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")

	// Engine flags
	inferCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "overall timeout (matters only with a narrator)")
	inferCmd.Flags().StringVar(&tablesPath, "tables", "", "reference tables document (default: embedded)")
	inferCmd.Flags().BoolVar(&useCache, "cache", false, "enable the result cache")
	inferCmd.Flags().BoolVar(&concurrentExt, "concurrent-extractors", false, "run signal extractors in parallel")

	// LLM flags
	inferCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "narrative provider (openai, ollama)")
	inferCmd.Flags().StringVar(&llmModel, "llm-model", "", "narrative model name")
}

// applyEngineFlags overlays engine flags shared by infer and batch
func applyEngineFlags(cmd *cobra.Command, c *model.Config) {
	if cmd.Flags().Changed("tables") {
		c.Tables.Path = tablesPath
	}
	if cmd.Flags().Changed("cache") {
		c.Cache.Enabled = useCache
	}
	if cmd.Flags().Changed("concurrent-extractors") {
		c.Engine.ConcurrentExtractors = concurrentExt
	}
	if cmd.Flags().Changed("no-footer") {
		c.Output.IncludeFooter = !noFooter
	}
	if cmd.Flags().Changed("llm-provider") {
		c.LLM.Provider = llmProvider
		if c.LLM.APIKey == "" && llmProvider == "openai" {
			c.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
		if c.LLM.BaseURL == "" && llmProvider == "ollama" {
			c.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
	if cmd.Flags().Changed("llm-model") {
		c.LLM.Model = llmModel
	}
}

func runInfer(cmd *cobra.Command, args []string) error {
	applyEngineFlags(cmd, cfg)

	facts, err := factsFromFlags(cmd)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	p, err := pipeline.NewPipeline(cfg)
	if err != nil {
		return errors.Wrap(err, "create pipeline")
	}

	if cfg.Output.Verbose {
		fmt.Fprintf(os.Stderr, "Reference tables: %s\n", p.Tables())
		fmt.Fprintf(os.Stderr, "Cache: %v\n\n", cfg.Cache.Enabled)
	}

	result, err := p.Infer(ctx, facts)
	if err != nil {
		return errors.Wrap(err, "inference failed")
	}

	renderer := pipeline.NewRenderer(cfg.Output.IncludeFooter)

	if cfg.Output.Verbose {
		for i, line := range result.Reasoning {
			fmt.Fprintf(os.Stderr, "  %2d. %s\n", i+1, line)
		}
		fmt.Fprintln(os.Stderr)
	}

	switch outJSON {
	case "":
	case "-":
		if err := renderer.WriteJSON(os.Stdout, result); err != nil {
			return errors.Wrap(err, "write JSON")
		}
	default:
		if err := renderer.RenderJSON(result, outJSON); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ JSON report: %s\n", outJSON)
	}

	if outMD != "" {
		if err := renderer.RenderMarkdown(result, outMD); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Markdown report: %s\n", outMD)
	}

	if outJSON != "-" {
		renderer.RenderSummary(os.Stdout, result)
	}

	return nil
}

// factsFromFlags builds the entity facts from --facts, then overlays any
// explicit field flags
func factsFromFlags(cmd *cobra.Command) (model.EntityFacts, error) {
	var facts model.EntityFacts

	if factsPath != "" {
		data, err := readInput(factsPath)
		if err != nil {
			return facts, err
		}
		if err := json.Unmarshal(data, &facts); err != nil {
			return facts, errors.Wrapf(err, "decode facts %s", factsPath)
		}
	}

	flags := cmd.Flags()
	if flags.Changed("id") {
		facts.ID = entityID
	}
	if flags.Changed("biography") {
		facts.Biography = biography
	}
	if biographyFile != "" {
		data, err := readInput(biographyFile)
		if err != nil {
			return facts, err
		}
		facts.Biography = string(data)
	}
	if flags.Changed("era") {
		facts.EraLabel = eraLabel
	}
	if flags.Changed("culture") {
		facts.CultureLabel = cultureLabel
	}
	if flags.Changed("status") {
		facts.StatusLabel = statusLabel
	}
	if flags.Changed("birth-year") {
		facts.BirthYear = model.Year(birthYear)
	}
	if flags.Changed("source") {
		facts.Source = source
	}

	return facts, nil
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		return data, errors.Wrap(err, "read stdin")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", path)
	}
	return data, nil
}
