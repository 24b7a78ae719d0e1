package sqlassistctl

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/sqlassist/sqlassist/internal/speech"
)

const maxPrintedRows = 20

type client struct {
	baseURL  string
	http     *http.Client
	capturer speech.Capturer
	stdout   io.Writer
}

func (c *client) do(ctx context.Context, method, path, contentType string, body io.Reader) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, failed("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, failed("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failed("read response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, failed("http %d: %s", resp.StatusCode, describeError(responseBody))
	}
	return responseBody, nil
}

func (c *client) upload(ctx context.Context, path string, audio []byte, filename, language string) ([]byte, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	part, err := writer.CreateFormFile("audio", filepath.Base(filename))
	if err != nil {
		return nil, failed("build upload: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return nil, failed("build upload: %w", err)
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return nil, failed("build upload: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, failed("build upload: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, writer.FormDataContentType(), body)
}

func (c *client) printJSON(raw []byte) error {
	if pretty, ok := prettyJSON(raw); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return nil
	}
	if len(raw) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(raw))
	}
	return nil
}

type answer struct {
	Question   string `json:"question"`
	Transcript string `json:"transcript"`
	SQL        string `json:"sql"`
	Columns    []struct {
		Name string `json:"name"`
	} `json:"columns"`
	Rows   [][]any `json:"rows"`
	Charts []struct {
		Kind    string `json:"kind"`
		Title   string `json:"title"`
		Message string `json:"message"`
	} `json:"charts"`
}

// printAnswer writes the SQL, the first rows as a table and the chart list.
func (c *client) printAnswer(raw []byte) error {
	var a answer
	if err := json.Unmarshal(raw, &a); err != nil {
		return failed("decode answer: %w", err)
	}
	if a.Transcript != "" {
		_, _ = fmt.Fprintf(c.stdout, "Heard: %s\n", a.Transcript)
	}
	_, _ = fmt.Fprintf(c.stdout, "SQL:\n  %s\n\n", strings.ReplaceAll(a.SQL, "\n", "\n  "))

	tw := tabwriter.NewWriter(c.stdout, 0, 4, 2, ' ', 0)
	names := make([]string, len(a.Columns))
	for i, column := range a.Columns {
		names[i] = column.Name
	}
	_, _ = fmt.Fprintln(tw, strings.Join(names, "\t"))
	for i, row := range a.Rows {
		if i == maxPrintedRows {
			break
		}
		cells := make([]string, len(row))
		for j, value := range row {
			if value != nil {
				cells[j] = fmt.Sprint(value)
			}
		}
		_, _ = fmt.Fprintln(tw, strings.Join(cells, "\t"))
	}
	_ = tw.Flush()
	if len(a.Rows) > maxPrintedRows {
		_, _ = fmt.Fprintf(c.stdout, "... %d more rows\n", len(a.Rows)-maxPrintedRows)
	}

	_, _ = fmt.Fprintln(c.stdout, "\nCharts:")
	for _, spec := range a.Charts {
		switch {
		case spec.Message != "":
			_, _ = fmt.Fprintf(c.stdout, "  %s: %s\n", spec.Kind, spec.Message)
		case spec.Title != "":
			_, _ = fmt.Fprintf(c.stdout, "  %s: %s\n", spec.Kind, spec.Title)
		default:
			_, _ = fmt.Fprintf(c.stdout, "  %s\n", spec.Kind)
		}
	}
	return nil
}

// describeError prefers the envelope message and details over the raw body.
func describeError(raw []byte) string {
	var envelope struct {
		Code    string         `json:"error_code"`
		Message string         `json:"message"`
		Context map[string]any `json:"context"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Code == "" {
		return strings.TrimSpace(string(raw))
	}
	text := envelope.Code + ": " + envelope.Message
	if details, ok := envelope.Context["details"].(string); ok && details != "" {
		text += " (" + details + ")"
	}
	return text
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}
