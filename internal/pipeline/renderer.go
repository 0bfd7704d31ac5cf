package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/ppiankov/archetype/internal/model"
)

const footer = "_Archetype readings are heuristic. They describe the evidence in the input facts, not the person._"

// Renderer writes results as JSON, Markdown and one-line summaries
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// WriteJSON writes the indented JSON record
func (r *Renderer) WriteJSON(w io.Writer, res *model.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// RenderJSON writes the JSON record to path
func (r *Renderer) RenderJSON(res *model.Result, path string) error {
	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshal result")
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the Markdown report to path
func (r *Renderer) RenderMarkdown(res *model.Result, path string) error {
	return writeFile(path, []byte(r.Markdown(res)))
}

// Markdown renders a human-readable report
func (r *Renderer) Markdown(res *model.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Archetype: %s\n\n", res.EntityID)
	for _, t := range res.Types {
		label := "Primary type"
		if t.Rank == model.RankSecondary {
			label = "Secondary type"
		}
		fmt.Fprintf(&b, "**%s:** %s (weight %.2f)  \n", label, t.Code, t.Weight)
	}
	fmt.Fprintf(&b, "**Confidence:** %.2f  \n", res.Confidence)
	fmt.Fprintf(&b, "**Reference tables:** %s\n", res.TableVersion)
	if res.RunID != "" {
		fmt.Fprintf(&b, "**Run:** %s\n", res.RunID)
	}

	b.WriteString("\n## Profile\n\n")
	b.WriteString("| Axis | Pole | Value | Pole | Value |\n")
	b.WriteString("|---|---|---:|---|---:|\n")
	for _, a := range model.AllAxes() {
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %d |\n",
			a, a.First(), res.Profile[a.First()], a.Second(), res.Profile[a.Second()])
	}

	b.WriteString("\n## Signals\n\n")
	if len(res.Provenance) == 0 {
		b.WriteString("No signals fired.\n")
	}
	for _, p := range res.Provenance {
		fmt.Fprintf(&b, "- `%s`\n", p)
	}

	b.WriteString("\n## Reasoning\n\n")
	for i, line := range res.Reasoning {
		fmt.Fprintf(&b, "%d. %s\n", i+1, line)
	}

	if len(res.Faults) > 0 {
		b.WriteString("\n## Faults\n\n")
		for _, f := range res.Faults {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}

	if n := res.Narrative; n != nil && (n.Text != "" || len(n.Warnings) > 0) {
		b.WriteString("\n## Narrative\n\n")
		if n.Text != "" {
			fmt.Fprintf(&b, "%s\n\n", n.Text)
			fmt.Fprintf(&b, "_Written by %s", n.Provider)
			if n.Model != "" {
				fmt.Fprintf(&b, "/%s", n.Model)
			}
			b.WriteString(" from the reasoning above; it does not affect scoring._\n")
		}
		for _, w := range n.Warnings {
			fmt.Fprintf(&b, "- ⚠ %s\n", w)
		}
	}

	if r.includeFooter {
		fmt.Fprintf(&b, "\n---\n\n%s\n", footer)
	}

	return b.String()
}

// RenderSummary prints a one-line summary
func (r *Renderer) RenderSummary(w io.Writer, res *model.Result) {
	types := make([]string, 0, len(res.Types))
	for _, t := range res.Types {
		types = append(types, fmt.Sprintf("%s (%.2f)", t.Code, t.Weight))
	}

	tags := make([]string, 0, len(res.Provenance))
	for _, p := range res.Provenance {
		tags = append(tags, string(p))
	}

	line := fmt.Sprintf("%s  %s  confidence %.2f  [%s]", res.EntityID, strings.Join(types, " / "), res.Confidence, strings.Join(tags, ", "))
	if len(res.Faults) > 0 {
		line += fmt.Sprintf("  faults: %d", len(res.Faults))
	}
	fmt.Fprintln(w, line)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.Wrapf(err, "create directory %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	return nil
}
