// Package sqlassistctl is the command line client for the sqlassist API.
package sqlassistctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/sqlassist/sqlassist/internal/speech"
)

type Options struct {
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	// Capturer records the question for the listen command.
	Capturer speech.Capturer
	Stdout   io.Writer
	Stderr   io.Writer
}

// requestError marks a failure talking to the API, as opposed to a usage
// error. It maps to exit code 1.
type requestError struct {
	err error
}

func (e *requestError) Error() string { return e.err.Error() }

func (e *requestError) Unwrap() error { return e.err }

func failed(format string, args ...any) error {
	return &requestError{err: fmt.Errorf(format, args...)}
}

// Run executes one command and returns the process exit code: 0 on success,
// 1 when the request failed and 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	c := &client{capturer: defaults.Capturer, stdout: stdout}
	root := newRootCommand(c, defaults)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return 0
	}
	_, _ = fmt.Fprintln(stderr, err)
	var reqErr *requestError
	if errors.As(err, &reqErr) {
		return 1
	}
	_, _ = fmt.Fprintln(stderr)
	_, _ = fmt.Fprint(stderr, root.UsageString())
	return 2
}

func newRootCommand(c *client, defaults Options) *cobra.Command {
	var baseURL string
	var timeout time.Duration

	root := &cobra.Command{
		Use:           "sqlassistctl",
		Short:         "Ask a database questions in plain language through the sqlassist API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			c.baseURL = strings.TrimRight(baseURL, "/")
			c.http = defaults.HTTPClient
			if c.http == nil {
				c.http = &http.Client{Timeout: timeout}
			}
		},
		RunE: func(*cobra.Command, []string) error {
			return errors.New("a command is required")
		},
	}
	root.PersistentFlags().StringVar(&baseURL, "base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "sqlassist API base URL")
	root.PersistentFlags().DurationVar(&timeout, "timeout", durationOr(defaults.Timeout, 2*time.Minute), "HTTP timeout (e.g. 90s)")

	for _, get := range []struct{ name, path, short string }{
		{"health", "/v1/health", "Check that the API is up"},
		{"ready", "/v1/ready", "Check that the API can reach its database"},
		{"schema", "/v1/schema", "Show the schema handed to the model"},
		{"languages", "/v1/languages", "List the speech recognition languages"},
	} {
		path := get.path
		root.AddCommand(&cobra.Command{
			Use:   get.name,
			Short: get.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				body, err := c.do(cmd.Context(), http.MethodGet, path, "", nil)
				if err != nil {
					return err
				}
				return c.printJSON(body)
			},
		})
	}

	root.AddCommand(newAskCommand(c), newListenCommand(c), newTranscribeCommand(c), newExportCommand(c))
	return root
}

func newAskCommand(c *client) *cobra.Command {
	var language string
	var raw bool
	cmd := &cobra.Command{
		Use:   "ask <question...>",
		Short: "Ask a question and print the SQL, rows and charts",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"question": strings.Join(args, " "), "language": language})
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodPost, "/v1/ask", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			if raw {
				return c.printJSON(body)
			}
			return c.printAnswer(body)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "question language (BCP-47 code or name)")
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON answer")
	return cmd
}

func newListenCommand(c *client) *cobra.Command {
	var language string
	var raw bool
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Record a spoken question from the microphone and answer it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.capturer == nil {
				return failed("microphone capture: %v", speech.ErrCaptureUnavailable)
			}
			_, _ = fmt.Fprintln(c.stdout, "Listening...")
			audio, err := c.capturer.Capture(cmd.Context())
			if err != nil {
				return failed("microphone capture: %w", err)
			}
			body, err := c.upload(cmd.Context(), "/v1/ask/speech", audio, "question.wav", language)
			if err != nil {
				return err
			}
			if raw {
				return c.printJSON(body)
			}
			return c.printAnswer(body)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language (BCP-47 code or name)")
	cmd.Flags().BoolVar(&raw, "json", false, "print the raw JSON answer")
	return cmd
}

func newTranscribeCommand(c *client) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "transcribe <audio-file>",
		Short: "Transcribe a recorded question without answering it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			audio, err := os.ReadFile(args[0])
			if err != nil {
				return failed("read audio: %w", err)
			}
			body, err := c.upload(cmd.Context(), "/v1/transcribe", audio, args[0], language)
			if err != nil {
				return err
			}
			return c.printJSON(body)
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "", "spoken language (BCP-47 code or name)")
	return cmd
}

func newExportCommand(c *client) *cobra.Command {
	var output, language string
	cmd := &cobra.Command{
		Use:   "export <question...>",
		Short: "Answer a question and save the result with charts as an Excel workbook",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := json.Marshal(map[string]string{"question": strings.Join(args, " "), "language": language})
			if err != nil {
				return err
			}
			body, err := c.do(cmd.Context(), http.MethodPost, "/v1/export.xlsx", "application/json", bytes.NewReader(payload))
			if err != nil {
				return err
			}
			if err := os.WriteFile(output, body, 0o644); err != nil {
				return failed("write %s: %w", output, err)
			}
			_, _ = fmt.Fprintf(c.stdout, "wrote %s (%d bytes)\n", output, len(body))
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "answer.xlsx", "workbook path")
	cmd.Flags().StringVarP(&language, "language", "l", "", "question language")
	return cmd
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
