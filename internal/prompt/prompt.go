// Package prompt fills the model prompt template with a schema description and
// a user question.
package prompt

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
)

const (
	SchemaPlaceholder   = "{schema}"
	QuestionPlaceholder = "{question}"
)

//go:embed prompt_template.txt
var defaultTemplate string

// TemplateError reports a template that lacks required placeholders.
type TemplateError struct {
	Missing []string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("prompt template missing placeholders: %s", strings.Join(e.Missing, ", "))
}

type Template struct {
	text string
}

// Parse validates that text carries both placeholders.
func Parse(text string) (*Template, error) {
	var missing []string
	if !strings.Contains(text, SchemaPlaceholder) {
		missing = append(missing, SchemaPlaceholder)
	}
	if !strings.Contains(text, QuestionPlaceholder) {
		missing = append(missing, QuestionPlaceholder)
	}
	if len(missing) > 0 {
		return nil, &TemplateError{Missing: missing}
	}
	return &Template{text: text}, nil
}

// Load reads the template at path, or the built-in one when path is empty.
func Load(path string) (*Template, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Parse(defaultTemplate)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read prompt template %s: %w", path, err)
	}
	return Parse(string(raw))
}

// Build substitutes every placeholder occurrence in a single pass, so
// placeholder text inside the question is left as typed.
func (t *Template) Build(schemaText, question string) string {
	replacer := strings.NewReplacer(
		SchemaPlaceholder, schemaText,
		QuestionPlaceholder, question,
	)
	return replacer.Replace(t.text)
}

func (t *Template) Text() string {
	return t.text
}

func Build(templateText, schemaText, question string) (string, error) {
	tmpl, err := Parse(templateText)
	if err != nil {
		return "", err
	}
	return tmpl.Build(schemaText, question), nil
}
