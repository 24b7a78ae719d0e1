// Package nl2sql turns a filled prompt into SQL through a language model backend.
package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/retry"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const systemPrompt = "You convert natural language questions into a single SQL query for the schema given by the user. " +
	"Return ONLY SQL. No markdown, no explanation."

type Result struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
}

type Generator interface {
	Generate(ctx context.Context, prompt string) (Result, error)
}

// LLMError is returned when no usable SQL came back from the model, after
// all attempts were spent or a non-retryable failure occurred.
type LLMError struct {
	Provider   string
	Model      string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *LLMError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s sql generation failed after %d attempt(s) status=%d: %v", e.Provider, e.Attempts, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s sql generation failed after %d attempt(s): %v", e.Provider, e.Attempts, e.Err)
}

func (e *LLMError) Unwrap() error { return e.Err }

var errEmptySQL = errors.New("model returned empty SQL")

// attempt classifies one backend call for retry.Do and records its outcome.
func classifyAttempt(ctx context.Context, provider string, statusCode int, err error) error {
	switch {
	case err == nil:
		observability.ObserveLLMAttempt(provider, "success")
		return nil
	case ctx.Err() != nil:
		observability.ObserveLLMAttempt(provider, "canceled")
		return ctx.Err()
	case statusCode == 0 || retry.IsRetryableHTTPStatus(statusCode):
		observability.ObserveLLMAttempt(provider, "retryable_error")
		return err
	default:
		observability.ObserveLLMAttempt(provider, "error")
		return retry.Permanent(err)
	}
}

func stripMarkdownSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```sql")
		trimmed = strings.TrimPrefix(trimmed, "```SQL")
		trimmed = strings.TrimPrefix(trimmed, "```")
		trimmed = strings.TrimSuffix(trimmed, "```")
		return strings.TrimSpace(trimmed)
	}
	return trimmed
}
