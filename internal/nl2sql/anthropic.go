package nl2sql

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/liushuangls/go-anthropic/v2"

	"github.com/sqlassist/sqlassist/internal/retry"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com/v1"

type AnthropicConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Retry     retry.Config
}

type AnthropicGenerator struct {
	client    *anthropic.Client
	model     string
	maxTokens int
	retry     retry.Config
}

func NewAnthropicGenerator(cfg AnthropicConfig) (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("model is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	httpClient := &http.Client{
		Timeout:   timeout,
		Transport: statusRecorder{base: http.DefaultTransport},
	}
	client := anthropic.NewClient(apiKey,
		anthropic.WithBaseURL(strings.TrimRight(baseURL, "/")),
		anthropic.WithHTTPClient(httpClient),
	)
	return &AnthropicGenerator{
		client:    client,
		model:     model,
		maxTokens: maxTokens,
		retry:     cfg.Retry,
	}, nil
}

func (g *AnthropicGenerator) Generate(ctx context.Context, prompt string) (Result, error) {
	var sql string
	var lastStatus int
	attempts, err := retry.Do(ctx, g.retry, func(int) error {
		status := new(int)
		var callErr error
		sql, callErr = g.complete(context.WithValue(ctx, statusKey{}, status), prompt)
		lastStatus = *status
		return classifyAttempt(ctx, ProviderAnthropic, lastStatus, callErr)
	})
	if err != nil {
		return Result{}, &LLMError{Provider: ProviderAnthropic, Model: g.model, StatusCode: lastStatus, Attempts: attempts, Err: err}
	}
	return Result{SQL: sql, Provider: ProviderAnthropic, Model: g.model}, nil
}

func (g *AnthropicGenerator) complete(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.CreateMessages(ctx, anthropic.MessagesRequest{
		Model:     anthropic.Model(g.model),
		System:    systemPrompt,
		MaxTokens: g.maxTokens,
		Messages: []anthropic.Message{
			{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
				{Type: "text", Text: &prompt},
			}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("create message: %w", err)
	}
	sql := stripMarkdownSQL(extractText(resp))
	if sql == "" {
		return "", errEmptySQL
	}
	return sql, nil
}

func extractText(resp anthropic.MessagesResponse) string {
	var parts []string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			parts = append(parts, *block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

type statusKey struct{}

// statusRecorder stores the response status in the *int carried by the
// request context, so retries can be classified per call.
type statusRecorder struct {
	base http.RoundTripper
}

func (s statusRecorder) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := s.base.RoundTrip(req)
	if err == nil {
		if status, ok := req.Context().Value(statusKey{}).(*int); ok {
			*status = resp.StatusCode
		}
	}
	return resp, err
}
