//go:build portaudio

package speech

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/gordonklaus/portaudio"
)

const framesPerBuffer = 1024

type Microphone struct {
	cfg    CaptureConfig
	logger *slog.Logger
}

func NewMicrophone(cfg CaptureConfig, logger *slog.Logger) *Microphone {
	if logger == nil {
		logger = slog.Default()
	}
	return &Microphone{cfg: cfg.withDefaults(), logger: logger}
}

func (m *Microphone) Capture(ctx context.Context) ([]byte, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("initializing portaudio: %w", err)
	}
	defer func() { _ = portaudio.Terminate() }()

	buffer := make([]int16, framesPerBuffer)
	stream, err := portaudio.OpenDefaultStream(1, 0, float64(m.cfg.SampleRate), len(buffer), buffer)
	if err != nil {
		return nil, fmt.Errorf("opening stream: %w", err)
	}
	defer func() { _ = stream.Close() }()

	if err := stream.Start(); err != nil {
		return nil, fmt.Errorf("starting stream: %w", err)
	}
	defer func() { _ = stream.Stop() }()

	m.logger.Info("listening", "sample_rate", m.cfg.SampleRate, "timeout", m.cfg.Timeout)
	detector := newPhraseDetector(m.cfg)
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		if err := stream.Read(); err != nil {
			return nil, fmt.Errorf("reading from stream: %w", err)
		}
		frame := make([]int16, len(buffer))
		copy(frame, buffer)

		done, err := detector.push(frame)
		if err != nil {
			return nil, &RecognitionError{Kind: KindUnintelligible, Err: err}
		}
		if done {
			m.logger.Debug("phrase captured", "samples", len(detector.samples))
			return EncodeWAV(detector.samples, m.cfg.SampleRate), nil
		}
	}
}
