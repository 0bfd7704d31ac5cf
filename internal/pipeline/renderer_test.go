package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ppiankov/archetype/internal/model"
)

func renaissanceResult(t *testing.T) *model.Result {
	t.Helper()
	r, err := newTestPipeline(t).Infer(context.Background(), model.EntityFacts{ID: "a1", EraLabel: "Renaissance"})
	if err != nil {
		t.Fatalf("Infer failed: %v", err)
	}
	return r
}

func TestRenderJSON_StableFieldNames(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "a1.json")

	if err := NewRenderer(true).RenderJSON(renaissanceResult(t), path); err != nil {
		t.Fatalf("RenderJSON failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	for _, key := range []string{"entity_id", "profile", "types", "confidence", "provenance", "reasoning", "table_version"} {
		if _, ok := decoded[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	if _, ok := decoded["narrative"]; ok {
		t.Error("expected narrative to be omitted when absent")
	}

	profile := decoded["profile"].(map[string]any)
	if profile["Structured"].(float64) != 70 {
		t.Errorf("expected profile keyed by pole name, got %v", profile)
	}
}

func TestMarkdown(t *testing.T) {
	r := renaissanceResult(t)
	r.Narrative = &model.Narrative{Provider: "ollama", Model: "llama3.1", Text: "Reads as INFJ."}

	md := NewRenderer(true).Markdown(r)
	for _, want := range []string{
		"# Archetype: a1",
		"**Primary type:** INFJ",
		"**Confidence:** 0.60",
		"| method | Fluid | 30 | Structured | 70 |",
		"- `era_pattern`",
		"1. reference tables default@1.0.0",
		"## Narrative",
		"_Written by ollama/llama3.1",
		"not the person",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("expected markdown to contain %q", want)
		}
	}

	if strings.Contains(NewRenderer(false).Markdown(r), "not the person") {
		t.Error("expected footer to be omitted")
	}
}

func TestRenderSummary(t *testing.T) {
	var buf bytes.Buffer
	r := renaissanceResult(t)
	r.Faults = []string{"x extractor fault: boom"}

	NewRenderer(true).RenderSummary(&buf, r)

	line := buf.String()
	if !strings.HasPrefix(line, "a1  INFJ (0.70) / ENFJ (0.30)  confidence 0.60  [era_pattern]") {
		t.Errorf("unexpected summary %q", line)
	}
	if !strings.Contains(line, "faults: 1") {
		t.Errorf("expected fault count in summary, got %q", line)
	}
}
