// Package speech turns recorded questions into text.
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/sqlassist/sqlassist/internal/observability"
	"github.com/sqlassist/sqlassist/internal/retry"
)

type Recognizer interface {
	Transcribe(ctx context.Context, audio []byte, language string) (string, error)
}

type WhisperConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
	Retry   retry.Config
}

// WhisperClient talks to an OpenAI-compatible /audio/transcriptions endpoint.
type WhisperClient struct {
	baseURL    string
	apiKey     string
	model      string
	retry      retry.Config
	httpClient *http.Client
}

func NewWhisperClient(cfg WhisperConfig) (*WhisperClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "whisper-1"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &WhisperClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     strings.TrimSpace(cfg.APIKey),
		model:      model,
		retry:      cfg.Retry,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

type transcriptionResponse struct {
	Text string `json:"text"`
}

func (c *WhisperClient) Transcribe(ctx context.Context, audio []byte, language string) (string, error) {
	if len(audio) == 0 {
		observability.ObserveSpeech("unintelligible")
		return "", &RecognitionError{Kind: KindUnintelligible, Language: language, Err: ErrEmptyTranscript}
	}
	resolved, ok := LookupLanguage(language)
	if !ok {
		observability.ObserveSpeech("error")
		return "", &RecognitionError{Kind: KindService, Language: language, Err: fmt.Errorf("%w: %q", ErrUnsupportedLanguage, language)}
	}

	var text string
	_, err := retry.Do(ctx, c.retry, func(int) error {
		var status int
		var callErr error
		text, status, callErr = c.transcribeOnce(ctx, audio, resolved.Code)
		switch {
		case callErr == nil:
			return nil
		case ctx.Err() != nil:
			return ctx.Err()
		case status == 0 || retry.IsRetryableHTTPStatus(status):
			return callErr
		default:
			return retry.Permanent(callErr)
		}
	})
	if err != nil {
		observability.ObserveSpeech("error")
		return "", &RecognitionError{Kind: KindService, Language: resolved.Code, Err: err}
	}

	text = strings.TrimSpace(text)
	if text == "" {
		observability.ObserveSpeech("unintelligible")
		return "", &RecognitionError{Kind: KindUnintelligible, Language: resolved.Code, Err: ErrEmptyTranscript}
	}
	observability.ObserveSpeech("success")
	return text, nil
}

func (c *WhisperClient) transcribeOnce(ctx context.Context, audio []byte, code string) (string, int, error) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	part, err := writer.CreateFormFile("file", audioFilename(audio))
	if err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("creating form file: %w", err))
	}
	if _, err = part.Write(audio); err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("writing audio: %w", err))
	}
	if err = writer.WriteField("model", c.model); err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("writing model field: %w", err))
	}
	if err = writer.WriteField("language", baseLanguage(code)); err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("writing language field: %w", err))
	}
	if err = writer.WriteField("response_format", "json"); err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("writing response format field: %w", err))
	}
	if err = writer.Close(); err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("closing writer: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/audio/transcriptions", body)
	if err != nil {
		return "", 0, retry.Permanent(fmt.Errorf("creating request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("sending request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", resp.StatusCode, fmt.Errorf("transcription API error %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result transcriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", resp.StatusCode, fmt.Errorf("decoding response: %w", err)
	}
	return result.Text, resp.StatusCode, nil
}

// audioFilename names the upload after its container so the service can pick
// a decoder. Unknown payloads are sent as WAV.
func audioFilename(audio []byte) string {
	switch {
	case bytes.HasPrefix(audio, []byte("RIFF")):
		return "audio.wav"
	case bytes.HasPrefix(audio, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return "audio.webm"
	case bytes.HasPrefix(audio, []byte("OggS")):
		return "audio.ogg"
	case bytes.HasPrefix(audio, []byte("fLaC")):
		return "audio.flac"
	case bytes.HasPrefix(audio, []byte("ID3")), len(audio) > 1 && audio[0] == 0xFF && audio[1]&0xE0 == 0xE0:
		return "audio.mp3"
	default:
		return "audio.wav"
	}
}
