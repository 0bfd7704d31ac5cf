package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ppiankov/archetype/internal/model"
	"github.com/sashabaranov/go-openai"
)

func sampleResult() model.Result {
	return model.Result{
		EntityID: "a1",
		Profile:  model.ProfileFromFirst([model.AxisCount]int{50, 50, 50, 30}),
		Types: []model.TypeWeight{
			{Code: "INFJ", Weight: 0.65, Rank: model.RankPrimary},
			{Code: "INFP", Weight: 0.26, Rank: model.RankSecondary},
		},
		Confidence: 0.6,
		Provenance: []model.Provenance{model.ProvenanceEra},
		Reasoning: []string{
			"reference tables default@1.0.0",
			`era "Renaissance" applied dominant-pole pattern Structured (+20 each)`,
		},
		TableVersion: "default@1.0.0",
	}
}

func openAIServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("Expected path /chat/completions, got %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("Expected Authorization header Bearer test-key, got %s", r.Header.Get("Authorization"))
		}

		var req openai.ChatCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if len(req.Messages) != 2 || !strings.Contains(req.Messages[1].Content, "INFJ") {
			t.Errorf("Expected prompt to carry the result types, got %+v", req.Messages)
		}

		resp := openai.ChatCompletionResponse{
			ID:    "chatcmpl-123",
			Model: "gpt-4o-mini",
			Choices: []openai.ChatCompletionChoice{
				{
					Message:      openai.ChatCompletionMessage{Role: "assistant", Content: content},
					FinishReason: "stop",
				},
			},
			Usage: openai.Usage{TotalTokens: 100},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

func TestOpenAIProvider_Narrate_Success(t *testing.T) {
	server := openAIServer(t, "  A Renaissance era pattern points to INFJ, with INFP as a close reading.  ")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Model: "gpt-4o-mini", Timeout: 5, StrictTypes: true})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	resp, err := provider.Narrate(context.Background(), NarrateRequest{Result: sampleResult()})
	if err != nil {
		t.Fatalf("Narrate failed: %v", err)
	}

	if resp.Text != "A Renaissance era pattern points to INFJ, with INFP as a close reading." {
		t.Errorf("Unexpected text: %q", resp.Text)
	}
	if resp.Model != "gpt-4o-mini" {
		t.Errorf("Unexpected model: %s", resp.Model)
	}
	if resp.TokensUsed != 100 {
		t.Errorf("Unexpected token usage: %d", resp.TokensUsed)
	}
}

func TestOpenAIProvider_Narrate_TypeLeak(t *testing.T) {
	server := openAIServer(t, "This person is clearly an ESTP.")
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5, StrictTypes: true})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	_, err = provider.Narrate(context.Background(), NarrateRequest{Result: sampleResult()})
	if err == nil {
		t.Fatal("Expected type leak error")
	}
	if !strings.Contains(err.Error(), "TYPE LEAK") {
		t.Errorf("Expected TYPE LEAK error, got %v", err)
	}
}

func TestOpenAIProvider_Narrate_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error": {"message": "Invalid API key", "type": "invalid_request_error"}}`))
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL, Timeout: 5})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}

	if _, err := provider.Narrate(context.Background(), NarrateRequest{Result: sampleResult()}); err == nil {
		t.Error("Expected error for unauthorized response")
	}
}

func TestNewOpenAIProvider_RequiresKey(t *testing.T) {
	if _, err := NewOpenAIProvider(Config{}); err == nil {
		t.Error("Expected error without API key")
	}
}

func TestOpenAIProvider_IsAvailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/models" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(openai.ModelsList{Models: []openai.Model{{ID: "gpt-4o-mini"}}})
	}))
	defer server.Close()

	provider, err := NewOpenAIProvider(Config{APIKey: "test-key", BaseURL: server.URL})
	if err != nil {
		t.Fatalf("Failed to create provider: %v", err)
	}
	if !provider.IsAvailable(context.Background()) {
		t.Error("Expected provider to be available")
	}
}
