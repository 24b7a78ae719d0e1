package speech

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindUnintelligible ErrorKind = "unintelligible"
	KindService        ErrorKind = "service"
)

var (
	ErrEmptyTranscript     = errors.New("no speech could be recognized")
	ErrNoSpeech            = errors.New("no speech detected before capture timeout")
	ErrCaptureUnavailable  = errors.New("microphone capture not available: rebuild with -tags portaudio")
	ErrUnsupportedLanguage = errors.New("unsupported language")
)

type RecognitionError struct {
	Kind     ErrorKind
	Language string
	Err      error
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech recognition %s (%s): %v", e.Kind, e.Language, e.Err)
}

func (e *RecognitionError) Unwrap() error { return e.Err }

func IsUnintelligible(err error) bool {
	var recognitionErr *RecognitionError
	return errors.As(err, &recognitionErr) && recognitionErr.Kind == KindUnintelligible
}
