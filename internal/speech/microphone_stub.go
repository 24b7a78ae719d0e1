//go:build !portaudio

package speech

import (
	"context"
	"log/slog"
)

// Microphone stub when portaudio is not available.
type Microphone struct {
	cfg CaptureConfig
}

func NewMicrophone(cfg CaptureConfig, _ *slog.Logger) *Microphone {
	return &Microphone{cfg: cfg.withDefaults()}
}

func (m *Microphone) Capture(_ context.Context) ([]byte, error) {
	return nil, ErrCaptureUnavailable
}
