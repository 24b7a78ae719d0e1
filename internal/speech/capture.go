package speech

import (
	"bytes"
	"context"
	"encoding/binary"
	"time"
)

// Capturer records one spoken question and returns it as a WAV payload.
type Capturer interface {
	Capture(ctx context.Context) ([]byte, error)
}

type CaptureConfig struct {
	SampleRate int
	// Timeout bounds the wait for speech to start.
	Timeout time.Duration
	// MaxPhrase bounds the recording once speech has started.
	MaxPhrase time.Duration
	// Silence ends the phrase after this much quiet.
	Silence          time.Duration
	SilenceThreshold int16
}

func DefaultCaptureConfig() CaptureConfig {
	return CaptureConfig{
		SampleRate:       16000,
		Timeout:          6 * time.Second,
		MaxPhrase:        15 * time.Second,
		Silence:          time.Second,
		SilenceThreshold: 500,
	}
}

func (c CaptureConfig) withDefaults() CaptureConfig {
	defaults := DefaultCaptureConfig()
	if c.SampleRate <= 0 {
		c.SampleRate = defaults.SampleRate
	}
	if c.Timeout <= 0 {
		c.Timeout = defaults.Timeout
	}
	if c.MaxPhrase <= 0 {
		c.MaxPhrase = defaults.MaxPhrase
	}
	if c.Silence <= 0 {
		c.Silence = defaults.Silence
	}
	if c.SilenceThreshold <= 0 {
		c.SilenceThreshold = defaults.SilenceThreshold
	}
	return c
}

// phraseDetector decides when a stream of sample frames holds a complete
// phrase: speech must start within the capture timeout and ends after a run
// of silence or at MaxPhrase.
type phraseDetector struct {
	cfg       CaptureConfig
	samples   []int16
	started   bool
	waited    int
	quietRun  int
	phraseLen int
}

func newPhraseDetector(cfg CaptureConfig) *phraseDetector {
	return &phraseDetector{cfg: cfg}
}

func (d *phraseDetector) framesFor(duration time.Duration) int {
	return int(duration.Seconds() * float64(d.cfg.SampleRate))
}

// push consumes one frame. done reports a finished phrase; err is ErrNoSpeech
// when the wait for speech ran out.
func (d *phraseDetector) push(frame []int16) (done bool, err error) {
	loud := false
	for _, sample := range frame {
		if sample > d.cfg.SilenceThreshold || sample < -d.cfg.SilenceThreshold {
			loud = true
			break
		}
	}

	if !d.started {
		if !loud {
			d.waited += len(frame)
			if d.waited >= d.framesFor(d.cfg.Timeout) {
				return false, ErrNoSpeech
			}
			return false, nil
		}
		d.started = true
	}

	d.samples = append(d.samples, frame...)
	d.phraseLen += len(frame)
	if loud {
		d.quietRun = 0
	} else {
		d.quietRun += len(frame)
	}
	if d.quietRun >= d.framesFor(d.cfg.Silence) || d.phraseLen >= d.framesFor(d.cfg.MaxPhrase) {
		return true, nil
	}
	return false, nil
}

// EncodeWAV wraps mono 16-bit PCM samples in a RIFF/WAVE container.
func EncodeWAV(samples []int16, sampleRate int) []byte {
	var buf bytes.Buffer
	dataSize := len(samples) * 2

	buf.WriteString("RIFF")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(36+dataSize))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(16))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(1))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate))
	_ = binary.Write(&buf, binary.LittleEndian, uint32(sampleRate*2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(2))
	_ = binary.Write(&buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	_ = binary.Write(&buf, binary.LittleEndian, uint32(dataSize))
	_ = binary.Write(&buf, binary.LittleEndian, samples)
	return buf.Bytes()
}
