// Package assistant runs one question through introspection, SQL generation,
// execution and chart selection.
package assistant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sqlassist/sqlassist/internal/archive"
	"github.com/sqlassist/sqlassist/internal/chart"
	"github.com/sqlassist/sqlassist/internal/nl2sql"
	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/prompt"
	"github.com/sqlassist/sqlassist/internal/query"
	"github.com/sqlassist/sqlassist/internal/schema"
	"github.com/sqlassist/sqlassist/internal/speech"
)

const (
	SourceText   = "text"
	SourceSpeech = "speech"
)

const (
	StageTranscribe = "transcribe"
	StageIntrospect = "introspect"
	StagePrompt     = "prompt"
	StageGenerate   = "generate"
	StageExecute    = "execute"
	StageSelect     = "select"
	StageArchive    = "archive"
)

var (
	ErrEmptyQuestion   = errors.New("question is required")
	ErrSpeechDisabled  = errors.New("speech recognition is not configured")
	ErrTemplateMissing = errors.New("prompt template is not loaded")
)

type Question struct {
	Text     string `json:"text"`
	Language string `json:"language,omitempty"`
	Source   string `json:"source"`
}

type Answer struct {
	ID        string                   `json:"id"`
	CreatedAt time.Time                `json:"created_at"`
	Question  Question                 `json:"question"`
	SQL       string                   `json:"sql"`
	Provider  string                   `json:"provider"`
	Model     string                   `json:"model"`
	Result    query.Result             `json:"result"`
	Rule      string                   `json:"rule"`
	Charts    []chart.Spec             `json:"charts"`
	Timings   map[string]time.Duration `json:"-"`
}

// TimingsMS reports stage timings in whole milliseconds.
func (a Answer) TimingsMS() map[string]int64 {
	out := make(map[string]int64, len(a.Timings))
	for stage, elapsed := range a.Timings {
		out[stage] = elapsed.Milliseconds()
	}
	return out
}

type SchemaDescriber interface {
	Describe(ctx context.Context) (schema.Description, error)
}

type Executor interface {
	Execute(ctx context.Context, sqlText string) (query.Result, error)
}

type Archiver interface {
	Archive(ctx context.Context, record archive.Record, result query.Result) ([]string, error)
}

type Service struct {
	Schema     SchemaDescriber
	Template   *prompt.Template
	Generator  nl2sql.Generator
	Executor   Executor
	Selector   *chart.Selector
	Recognizer speech.Recognizer
	// Archiver is optional; nil disables the interaction archive.
	Archiver        Archiver
	DefaultLanguage string
	Logger          *slog.Logger
	Clock           func() time.Time
	NewID           func() string
}

func (s *Service) ensureDefaults() {
	if s.Clock == nil {
		s.Clock = time.Now
	}
	if s.NewID == nil {
		s.NewID = uuid.NewString
	}
	if s.Logger == nil {
		s.Logger = slog.New(slog.DiscardHandler)
	}
	if s.Selector == nil {
		s.Selector = chart.NewSelector(chart.DefaultOptions())
	}
	if s.DefaultLanguage == "" {
		s.DefaultLanguage = "en-US"
	}
}

// Describe returns the schema description the prompt is built from.
func (s *Service) Describe(ctx context.Context) (schema.Description, error) {
	if s.Schema == nil {
		return schema.Description{}, fmt.Errorf("schema describer is not configured")
	}
	return s.Schema.Describe(ctx)
}

// Ask answers one question. Stages run strictly in order and a failing stage
// ends the interaction with its typed error; nothing after it runs.
func (s *Service) Ask(ctx context.Context, question Question) (Answer, error) {
	s.ensureDefaults()
	question.Text = strings.TrimSpace(question.Text)
	if question.Text == "" {
		return Answer{}, ErrEmptyQuestion
	}
	if question.Source == "" {
		question.Source = SourceText
	}
	if question.Language == "" {
		question.Language = s.DefaultLanguage
	}

	answer := Answer{
		ID:        s.NewID(),
		CreatedAt: s.Clock().UTC(),
		Question:  question,
		Timings:   map[string]time.Duration{},
	}
	logger := s.Logger.With(slog.String("interaction_id", answer.ID), slog.String("source", question.Source))
	logger.InfoContext(ctx, "question received", slog.String("question", question.Text), slog.String("language", question.Language))

	err := s.run(ctx, logger, &answer)
	finish(ctx, logger, answer, err)
	if err != nil {
		return answer, err
	}

	if s.Archiver != nil {
		s.archive(ctx, logger, &answer)
	}
	return answer, nil
}

func (s *Service) run(ctx context.Context, logger *slog.Logger, answer *Answer) error {
	if s.Template == nil {
		return ErrTemplateMissing
	}

	var description schema.Description
	if err := s.stage(ctx, answer, StageIntrospect, func() error {
		var err error
		description, err = s.Describe(ctx)
		return err
	}); err != nil {
		return fmt.Errorf("introspect schema: %w", err)
	}
	logger.DebugContext(ctx, "schema introspected", slog.Int("tables", len(description.Tables)), slog.Int("columns", description.ColumnCount()))

	var promptText string
	if err := s.stage(ctx, answer, StagePrompt, func() error {
		promptText = s.Template.Build(description.Text(), answer.Question.Text)
		return nil
	}); err != nil {
		return fmt.Errorf("build prompt: %w", err)
	}

	var generated nl2sql.Result
	if err := s.stage(ctx, answer, StageGenerate, func() error {
		var err error
		generated, err = s.Generator.Generate(ctx, promptText)
		return err
	}); err != nil {
		return fmt.Errorf("generate sql: %w", err)
	}
	answer.SQL = generated.SQL
	answer.Provider = generated.Provider
	answer.Model = generated.Model
	logger.InfoContext(ctx, "sql generated", slog.String("provider", generated.Provider), slog.String("sql", generated.SQL))

	if err := s.stage(ctx, answer, StageExecute, func() error {
		var err error
		answer.Result, err = s.Executor.Execute(ctx, generated.SQL)
		return err
	}); err != nil {
		return fmt.Errorf("execute sql: %w", err)
	}
	logger.DebugContext(ctx, "query executed", slog.Int("rows", len(answer.Result.Rows)), slog.Int("columns", len(answer.Result.Columns)))

	if err := s.stage(ctx, answer, StageSelect, func() error {
		decision := s.Selector.Decide(answer.Result)
		answer.Rule = decision.Rule
		answer.Charts = decision.Specs
		return nil
	}); err != nil {
		return fmt.Errorf("select charts: %w", err)
	}
	for _, spec := range answer.Charts {
		observability.ObserveChart(string(spec.Kind))
	}
	logger.DebugContext(ctx, "charts selected", slog.String("rule", answer.Rule), slog.Int("charts", len(answer.Charts)))
	return nil
}

// AskSpeech transcribes audio in the given language and answers the
// transcript.
func (s *Service) AskSpeech(ctx context.Context, audio []byte, language string) (Answer, error) {
	s.ensureDefaults()
	transcript, err := s.Transcribe(ctx, audio, language)
	if err != nil {
		observability.ObserveInteraction(interactionStatus(err))
		return Answer{Question: Question{Language: language, Source: SourceSpeech}}, err
	}
	return s.Ask(ctx, Question{Text: transcript, Language: language, Source: SourceSpeech})
}

func (s *Service) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	s.ensureDefaults()
	if s.Recognizer == nil {
		return "", ErrSpeechDisabled
	}
	if language == "" {
		language = s.DefaultLanguage
	}
	started := time.Now()
	transcript, err := s.Recognizer.Transcribe(ctx, audio, language)
	observability.ObserveStage(StageTranscribe, time.Since(started))
	if err != nil {
		s.Logger.WarnContext(ctx, "speech recognition failed", slog.String("language", language), slog.Any("error", err))
		return "", err
	}
	return transcript, nil
}

func (s *Service) stage(ctx context.Context, answer *Answer, name string, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	started := time.Now()
	err := fn()
	elapsed := time.Since(started)
	answer.Timings[name] = elapsed
	observability.ObserveStage(name, elapsed)
	return err
}

func (s *Service) archive(ctx context.Context, logger *slog.Logger, answer *Answer) {
	started := time.Now()
	record := archive.Record{
		ID:        answer.ID,
		CreatedAt: answer.CreatedAt,
		Question:  answer.Question.Text,
		Language:  answer.Question.Language,
		Source:    answer.Question.Source,
		SQL:       answer.SQL,
		Provider:  answer.Provider,
		Model:     answer.Model,
		Charts:    answer.Charts,
		TimingsMS: answer.TimingsMS(),
	}
	keys, err := s.Archiver.Archive(ctx, record, answer.Result)
	elapsed := time.Since(started)
	answer.Timings[StageArchive] = elapsed
	observability.ObserveStage(StageArchive, elapsed)
	if err != nil {
		observability.IncrementArchiveFailure()
		logger.WarnContext(ctx, "archive interaction failed", slog.Any("error", err))
		return
	}
	logger.DebugContext(ctx, "interaction archived", slog.Any("keys", keys))
}

func finish(ctx context.Context, logger *slog.Logger, answer Answer, err error) {
	status := interactionStatus(err)
	observability.ObserveInteraction(status)
	if err != nil {
		logger.WarnContext(ctx, "interaction failed", slog.String("status", status), slog.Any("error", err))
		return
	}
	logger.InfoContext(ctx, "interaction answered",
		slog.Int("rows", len(answer.Result.Rows)),
		slog.String("rule", answer.Rule),
	)
}

func interactionStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "error"
	}
}
