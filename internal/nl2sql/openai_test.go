package nl2sql

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sqlassist/sqlassist/internal/config"
	"github.com/sqlassist/sqlassist/internal/retry"
)

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestStripMarkdownSQL(t *testing.T) {
	cases := map[string]string{
		"```sql\nSELECT 1;\n```": "SELECT 1;",
		"```\nSELECT 2\n```":     "SELECT 2",
		"  SELECT 3  ":           "SELECT 3",
	}
	for input, want := range cases {
		if got := stripMarkdownSQL(input); got != want {
			t.Fatalf("stripMarkdownSQL(%q) = %q, want %q", input, got, want)
		}
	}
}

func TestOpenAIGenerateReturnsSQL(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		var payload struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_completion_tokens"`
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &payload); err != nil {
			t.Fatalf("decode payload: %v", err)
		}
		if payload.Model != "gpt-test" || payload.MaxTokens != 256 {
			t.Fatalf("payload = %+v", payload)
		}
		if len(payload.Messages) != 2 || payload.Messages[1].Content != "the prompt" {
			t.Fatalf("messages = %+v", payload.Messages)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"` + "```sql\\nSELECT region, SUM(revenue) FROM orders GROUP BY region\\n```" + `"}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Model: "gpt-test", MaxTokens: 256, Retry: fastRetry(3)})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	result, err := generator.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.SQL != "SELECT region, SUM(revenue) FROM orders GROUP BY region" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if result.Provider != ProviderOpenAI || result.Model != "gpt-test" {
		t.Fatalf("result = %+v", result)
	}
}

func TestOpenAIGenerateServerErrorIsLLMError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, `{"error":"boom"}`, http.StatusInternalServerError)
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(3)})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	_, err = generator.Generate(context.Background(), "prompt")
	var llmErr *LLMError
	if !errors.As(err, &llmErr) {
		t.Fatalf("Generate() error = %v, want *LLMError", err)
	}
	if llmErr.StatusCode != http.StatusInternalServerError || llmErr.Attempts != 3 {
		t.Fatalf("LLMError = %+v", llmErr)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestOpenAIGenerateDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer server.Close()

	generator, _ := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(3)})
	_, err := generator.Generate(context.Background(), "prompt")
	var llmErr *LLMError
	if !errors.As(err, &llmErr) || llmErr.Attempts != 1 || llmErr.StatusCode != http.StatusUnauthorized {
		t.Fatalf("Generate() error = %v", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestOpenAIGenerateRecoversAfterRateLimit(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			http.Error(w, "slow down", http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 1"}}]}`))
	}))
	defer server.Close()

	generator, _ := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(3)})
	result, err := generator.Generate(context.Background(), "prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.SQL != "SELECT 1" || calls.Load() != 2 {
		t.Fatalf("result = %+v calls = %d", result, calls.Load())
	}
}

func TestOpenAIGenerateEmptyCompletionIsLLMError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"  "}}]}`))
	}))
	defer server.Close()

	generator, _ := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(3)})
	_, err := generator.Generate(context.Background(), "prompt")
	var llmErr *LLMError
	if !errors.As(err, &llmErr) || !errors.Is(err, errEmptySQL) || llmErr.Attempts != 1 {
		t.Fatalf("Generate() error = %v", err)
	}
}

func TestOpenAIGenerateStopsOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "unavailable", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	generator, _ := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(5)})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := generator.Generate(ctx, "prompt")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Generate() error = %v, want context.Canceled", err)
	}
}

func TestNewSelectsProvider(t *testing.T) {
	generator, err := New(config.AIConfig{Provider: config.ProviderOpenAI, APIKey: "k", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("New(openai) error = %v", err)
	}
	if _, ok := generator.(*OpenAIGenerator); !ok {
		t.Fatalf("generator = %T", generator)
	}

	generator, err = New(config.AIConfig{Provider: config.ProviderAnthropic, APIKey: "k", Model: "claude-test", MaxAttempts: 1})
	if err != nil {
		t.Fatalf("New(anthropic) error = %v", err)
	}
	if _, ok := generator.(*AnthropicGenerator); !ok {
		t.Fatalf("generator = %T", generator)
	}

	if _, err := New(config.AIConfig{Provider: "mystery", APIKey: "k"}); err == nil || !strings.Contains(err.Error(), "mystery") {
		t.Fatalf("New(mystery) error = %v", err)
	}
	if _, err := New(config.AIConfig{Provider: config.ProviderOpenAI}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestOpenAIGenerateRetriesAfterClientTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"SELECT 1"}}]}`))
	}))
	defer server.Close()

	generator, err := NewOpenAIGenerator(OpenAIConfig{BaseURL: server.URL, APIKey: "secret", Timeout: 100 * time.Millisecond, Retry: fastRetry(3)})
	if err != nil {
		t.Fatalf("NewOpenAIGenerator() error = %v", err)
	}
	result, err := generator.Generate(context.Background(), "the prompt")
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if result.SQL != "SELECT 1" {
		t.Fatalf("SQL = %q", result.SQL)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}
