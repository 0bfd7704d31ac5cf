// Package llm attaches optional prose narratives to finished results.
// Narration runs after scoring and can never change a result's profile,
// types, confidence or reasoning.
package llm

import (
	"context"

	"github.com/ppiankov/archetype/internal/model"
)

// Narrator adapts a Provider to the pipeline
type Narrator struct {
	provider Provider
	config   Config
}

// NewNarrator creates a narrator; an empty provider yields a disabled narrator
func NewNarrator(config Config) (*Narrator, error) {
	provider, err := NewProvider(config)
	if err != nil {
		return nil, err
	}
	return &Narrator{provider: provider, config: config}, nil
}

// NewNarratorWithProvider wraps an existing provider
func NewNarratorWithProvider(provider Provider, config Config) *Narrator {
	return &Narrator{provider: provider, config: config}
}

// IsEnabled reports whether a provider is configured
func (n *Narrator) IsEnabled() bool {
	return n != nil && n.provider != nil
}

// ProviderName returns the provider name, or "" when disabled
func (n *Narrator) ProviderName() string {
	if !n.IsEnabled() {
		return ""
	}
	return n.provider.Name()
}

// Narrate returns nil when disabled, a narrative carrying only warnings when
// the provider is unreachable, and an error when the provider call fails.
func (n *Narrator) Narrate(ctx context.Context, r *model.Result) (*model.Narrative, error) {
	if !n.IsEnabled() {
		return nil, nil
	}

	narrative := &model.Narrative{Provider: n.provider.Name()}

	if !n.provider.IsAvailable(ctx) {
		narrative.Warnings = append(narrative.Warnings, "LLM provider "+n.provider.Name()+" is not available; narrative skipped")
		return narrative, nil
	}

	resp, err := n.provider.Narrate(ctx, NarrateRequest{
		Result:    *r,
		Model:     n.config.Model,
		MaxTokens: n.config.MaxTokens,
	})
	if err != nil {
		return nil, err
	}

	narrative.Model = resp.Model
	narrative.Text = resp.Text
	if resp.Text == "" {
		narrative.Warnings = append(narrative.Warnings, "provider returned an empty narrative")
	}
	return narrative, nil
}
