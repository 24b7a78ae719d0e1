package api

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/sqlassist/sqlassist/internal/assistant"
	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/render/xlsx"
	"github.com/sqlassist/sqlassist/internal/speech"
)

const defaultMaxUploadBytes = 10 << 20

type askHandlers struct {
	assistant       Assistant
	logger          *slog.Logger
	defaultLanguage string
	maxUploadBytes  int64
}

type askRequest struct {
	Question string `json:"question"`
	Language string `json:"language"`
}

type answerResponse struct {
	ID         string           `json:"id"`
	Question   string           `json:"question"`
	Language   string           `json:"language"`
	Source     string           `json:"source"`
	SQL        string           `json:"sql"`
	Provider   string           `json:"provider"`
	Model      string           `json:"model"`
	Columns    []query.Column   `json:"columns"`
	Rows       [][]any          `json:"rows"`
	Rule       string           `json:"rule"`
	Charts     []chart.Spec     `json:"charts"`
	TimingsMS  map[string]int64 `json:"timings_ms"`
	Transcript string           `json:"transcript,omitempty"`
}

func newAnswerResponse(answer assistant.Answer) answerResponse {
	columns := answer.Result.Columns
	if columns == nil {
		columns = []query.Column{}
	}
	return answerResponse{
		ID:        answer.ID,
		Question:  answer.Question.Text,
		Language:  answer.Question.Language,
		Source:    answer.Question.Source,
		SQL:       answer.SQL,
		Provider:  answer.Provider,
		Model:     answer.Model,
		Columns:   columns,
		Rows:      jsonSafeRows(answer.Result.Rows),
		Rule:      answer.Rule,
		Charts:    answer.Charts,
		TimingsMS: answer.TimingsMS(),
	}
}

func (h *askHandlers) ready(w http.ResponseWriter, r *http.Request) bool {
	if h.assistant == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASSISTANT_NOT_CONFIGURED", "assistant dependencies are not configured", false, nil)
		return false
	}
	return true
}

func (h *askHandlers) schema(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	description, err := h.assistant.Describe(r.Context())
	if err != nil {
		h.fail(r, w, assistant.Answer{}, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"tables": description.Tables,
		"text":   description.Text(),
	})
}

func (h *askHandlers) languages(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"languages": speech.Languages(),
		"default":   h.defaultLanguage,
	})
}

func (h *askHandlers) ask(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	request, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}
	answer, err := h.assistant.Ask(r.Context(), assistant.Question{
		Text:     request.Question,
		Language: request.Language,
		Source:   assistant.SourceText,
	})
	if err != nil {
		h.fail(r, w, answer, err)
		return
	}
	writeJSON(w, http.StatusOK, newAnswerResponse(answer))
}

func (h *askHandlers) askSpeech(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	audio, language, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	answer, err := h.assistant.AskSpeech(r.Context(), audio, language)
	if err != nil {
		h.fail(r, w, answer, err)
		return
	}
	response := newAnswerResponse(answer)
	response.Transcript = answer.Question.Text
	writeJSON(w, http.StatusOK, response)
}

func (h *askHandlers) transcribe(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	audio, language, ok := h.readAudio(w, r)
	if !ok {
		return
	}
	transcript, err := h.assistant.Transcribe(r.Context(), audio, language)
	if err != nil {
		h.fail(r, w, assistant.Answer{}, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transcript": transcript, "language": language})
}

func (h *askHandlers) export(w http.ResponseWriter, r *http.Request) {
	if !h.ready(w, r) {
		return
	}
	request, ok := decodeAskRequest(w, r)
	if !ok {
		return
	}
	answer, err := h.assistant.Ask(r.Context(), assistant.Question{
		Text:     request.Question,
		Language: request.Language,
		Source:   assistant.SourceText,
	})
	if err != nil {
		h.fail(r, w, answer, err)
		return
	}

	workbook, err := xlsx.Render(xlsx.Workbook{
		Question: answer.Question.Text,
		SQL:      answer.SQL,
		Result:   answer.Result,
		Charts:   answer.Charts,
	})
	if err != nil {
		writeError(r.Context(), w, http.StatusInternalServerError, "EXPORT_FAILED", "failed to render workbook", false, map[string]any{"details": err.Error()})
		return
	}
	w.Header().Set("Content-Type", xlsx.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "sqlassist-"+answer.ID+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(workbook)
}

func decodeAskRequest(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var request askRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&request); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid ask request body", false, map[string]any{"details": err.Error()})
		return askRequest{}, false
	}
	if strings.TrimSpace(request.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return askRequest{}, false
	}
	return request, true
}

// readAudio reads the multipart "audio" file and optional "language" field.
func (h *askHandlers) readAudio(w http.ResponseWriter, r *http.Request) ([]byte, string, bool) {
	limit := h.maxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", "expected multipart form with an audio file", false, map[string]any{"details": err.Error()})
		return nil, "", false
	}
	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "AUDIO_REQUIRED", "audio file is required", false, nil)
		return nil, "", false
	}
	defer func() { _ = file.Close() }()
	audio, err := io.ReadAll(file)
	if err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_UPLOAD", "failed to read audio file", false, map[string]any{"details": err.Error()})
		return nil, "", false
	}

	language := strings.TrimSpace(r.FormValue("language"))
	if language == "" {
		language = h.defaultLanguage
	}
	return audio, language, true
}

// jsonSafeRows replaces NaN and infinities, which encoding/json rejects, with
// null.
func jsonSafeRows(rows [][]any) [][]any {
	out := make([][]any, len(rows))
	for i, row := range rows {
		safe := make([]any, len(row))
		for j, value := range row {
			if number, ok := value.(float64); ok && (math.IsNaN(number) || math.IsInf(number, 0)) {
				continue
			}
			safe[j] = value
		}
		out[i] = safe
	}
	return out
}

func (h *askHandlers) fail(r *http.Request, w http.ResponseWriter, answer assistant.Answer, err error) {
	failure := classifyError(err, answer)
	if h.logger != nil {
		h.logger.WarnContext(r.Context(), "ask request failed",
			slog.String("error_code", failure.code),
			slog.String("interaction_id", answer.ID),
			slog.Any("error", err),
		)
	}
	writeError(r.Context(), w, failure.status, failure.code, failure.message, failure.retryable, failure.context)
}
