package llm

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

// Provider defines the interface for LLM providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Narrate writes a short prose summary of an already scored result
	Narrate(ctx context.Context, req NarrateRequest) (*NarrateResponse, error)

	// IsAvailable checks if the provider is configured and reachable
	IsAvailable(ctx context.Context) bool
}

// NarrateRequest contains the input for narration
type NarrateRequest struct {
	// Result is the finished result; the narrative may only restate it
	Result model.Result

	// Prompt overrides the default prompt when non-empty
	Prompt string

	// Model is the provider-specific model name
	Model string

	MaxTokens int
}

// NarrateResponse contains the provider output
type NarrateResponse struct {
	Text       string
	Model      string
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "openai", "ollama", "" (disabled)
	Provider string

	Model   string
	APIKey  string
	BaseURL string

	// Proxy overrides the proxy environment variables for provider requests
	Proxy string

	// Timeout for API requests
	Timeout int // seconds

	// StrictTypes rejects narratives that name type codes absent from the result
	StrictTypes bool

	MaxTokens int
}

// DefaultConfig returns the defaults; narration is disabled
func DefaultConfig() Config {
	return Config{
		Timeout:     30,
		StrictTypes: true,
		MaxTokens:   400,
	}
}

const systemPrompt = "You restate personality-type inference results in plain prose. You never add facts, types or judgements that are not in the input."

// BuildPrompt constructs the default narration prompt from the reasoning trace
func BuildPrompt(r model.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, `Summarise this heuristic personality-type inference for entity %q in 2-3 sentences.

RULES:
1. Only mention these type codes: %s
2. Only restate the reasoning lines below. Do not speculate about the person.
3. Describe the result as a heuristic reading with confidence %.2f, never as a fact.

Types:
`, r.EntityID, strings.Join(typeCodes(r), ", "), r.Confidence)

	for _, t := range r.Types {
		fmt.Fprintf(&b, "- %s (%s, weight %.2f)\n", t.Code, t.Rank, t.Weight)
	}

	b.WriteString("\nReasoning:\n")
	for _, line := range r.Reasoning {
		fmt.Fprintf(&b, "- %s\n", line)
	}

	return b.String()
}

var typeCodePattern = regexp.MustCompile(`\b[IE][NS][FT][PJ]\b`)

// CheckTypeCodes returns an error if text names a type code that r does not carry
func CheckTypeCodes(text string, r model.Result) error {
	allowed := make(map[string]bool)
	for _, code := range typeCodes(r) {
		allowed[code] = true
	}
	for _, code := range typeCodePattern.FindAllString(text, -1) {
		if !allowed[code] {
			return errors.Newf("TYPE LEAK: narrative mentions type %s not present in the result", code)
		}
	}
	return nil
}

func typeCodes(r model.Result) []string {
	codes := make([]string, 0, len(r.Types))
	for _, t := range r.Types {
		codes = append(codes, t.Code)
	}
	return codes
}
