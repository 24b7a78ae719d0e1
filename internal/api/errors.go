package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/sqlassist/sqlassist/internal/assistant"
	"github.com/sqlassist/sqlassist/internal/nl2sql"
	"github.com/sqlassist/sqlassist/internal/prompt"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/schema"
	"github.com/sqlassist/sqlassist/internal/speech"
)

type apiFailure struct {
	status    int
	code      string
	message   string
	retryable bool
	context   map[string]any
}

// classifyError maps a pipeline error onto the response envelope. The
// interaction id and any generated SQL go into the context.
func classifyError(err error, answer assistant.Answer) apiFailure {
	details := map[string]any{"details": err.Error()}
	if answer.ID != "" {
		details["interaction_id"] = answer.ID
	}

	var (
		templateErr    *prompt.TemplateError
		schemaConnErr  *schema.ConnectionError
		queryConnErr   *query.ConnectionError
		llmErr         *nl2sql.LLMError
		executionErr   *query.SQLExecutionError
		recognitionErr *speech.RecognitionError
	)
	switch {
	case errors.Is(err, assistant.ErrEmptyQuestion):
		return apiFailure{http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, details}
	case errors.As(err, &templateErr), errors.Is(err, assistant.ErrTemplateMissing):
		return apiFailure{http.StatusInternalServerError, "TEMPLATE_INVALID", "prompt template is invalid", false, details}
	case errors.As(err, &schemaConnErr), errors.As(err, &queryConnErr):
		return apiFailure{http.StatusServiceUnavailable, "DATABASE_UNAVAILABLE", "database is unavailable", true, details}
	case errors.As(err, &llmErr):
		details["provider"] = llmErr.Provider
		details["attempts"] = llmErr.Attempts
		if llmErr.StatusCode > 0 {
			details["status_code"] = llmErr.StatusCode
		}
		return apiFailure{http.StatusBadGateway, "LLM_FAILED", "sql generation failed", true, details}
	case errors.As(err, &executionErr):
		details["sql"] = answer.SQL
		return apiFailure{http.StatusUnprocessableEntity, "QUERY_EXECUTION_FAILED", "generated sql could not be executed", false, details}
	case errors.Is(err, assistant.ErrSpeechDisabled), errors.Is(err, speech.ErrCaptureUnavailable):
		return apiFailure{http.StatusNotImplemented, "SPEECH_NOT_CONFIGURED", "speech recognition is not configured", false, details}
	case errors.Is(err, speech.ErrUnsupportedLanguage):
		return apiFailure{http.StatusBadRequest, "LANGUAGE_UNSUPPORTED", "language is not supported", false, details}
	case errors.As(err, &recognitionErr) && recognitionErr.Kind == speech.KindUnintelligible:
		return apiFailure{http.StatusUnprocessableEntity, "SPEECH_UNINTELLIGIBLE", "speech could not be understood", false, details}
	case errors.As(err, &recognitionErr):
		return apiFailure{http.StatusBadGateway, "SPEECH_SERVICE_FAILED", "speech recognition service failed", true, details}
	case errors.Is(err, context.DeadlineExceeded):
		return apiFailure{http.StatusGatewayTimeout, "TIMEOUT", "request timed out", true, details}
	case errors.Is(err, context.Canceled):
		return apiFailure{http.StatusRequestTimeout, "CANCELED", "request was canceled", true, details}
	default:
		return apiFailure{http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", false, details}
	}
}
