package speech

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sqlassist/sqlassist/internal/retry"
)

func fastRetry(attempts int) retry.Config {
	return retry.Config{MaxAttempts: attempts, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestTranscribeSendsMultipartRequest(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/audio/transcriptions" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Fatalf("Authorization = %q", got)
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("ParseMultipartForm() error = %v", err)
		}
		if got := r.FormValue("language"); got != "hi" {
			t.Fatalf("language = %q", got)
		}
		if got := r.FormValue("model"); got != "whisper-1" {
			t.Fatalf("model = %q", got)
		}
		file, _, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile() error = %v", err)
		}
		raw, _ := io.ReadAll(file)
		if string(raw) != "RIFFdata" {
			t.Fatalf("audio = %q", raw)
		}
		_, _ = w.Write([]byte(`{"text":"  total revenue by region "}`))
	}))
	defer server.Close()

	client, err := NewWhisperClient(WhisperConfig{BaseURL: server.URL + "/v1", APIKey: "secret", Retry: fastRetry(2)})
	if err != nil {
		t.Fatalf("NewWhisperClient() error = %v", err)
	}
	text, err := client.Transcribe(context.Background(), []byte("RIFFdata"), "Hindi (India)")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "total revenue by region" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribeEmptyTextIsUnintelligible(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":""}`))
	}))
	defer server.Close()

	client, _ := NewWhisperClient(WhisperConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(2)})
	_, err := client.Transcribe(context.Background(), []byte("audio"), "en-US")
	if !IsUnintelligible(err) || !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestTranscribeServerErrorIsServiceError(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	client, _ := NewWhisperClient(WhisperConfig{BaseURL: server.URL, APIKey: "secret", Retry: fastRetry(3)})
	_, err := client.Transcribe(context.Background(), []byte("audio"), "fr-FR")
	var recognitionErr *RecognitionError
	if !errors.As(err, &recognitionErr) || recognitionErr.Kind != KindService {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if calls.Load() != 3 {
		t.Fatalf("calls = %d, want 3", calls.Load())
	}
}

func TestTranscribeRejectsUnsupportedLanguage(t *testing.T) {
	client, _ := NewWhisperClient(WhisperConfig{BaseURL: "http://127.0.0.1:1", APIKey: "secret"})
	_, err := client.Transcribe(context.Background(), []byte("audio"), "xx-XX")
	if !errors.Is(err, ErrUnsupportedLanguage) {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestTranscribeEmptyAudioIsUnintelligible(t *testing.T) {
	client, _ := NewWhisperClient(WhisperConfig{APIKey: "secret"})
	if _, err := client.Transcribe(context.Background(), nil, "en-US"); !IsUnintelligible(err) {
		t.Fatalf("Transcribe() error = %v", err)
	}
}

func TestLanguages(t *testing.T) {
	all := Languages()
	if len(all) != 12 || all[0].Code != "en-US" || all[11].Code != "mr-IN" {
		t.Fatalf("Languages() = %#v", all)
	}
	all[0].Code = "mutated"
	if Languages()[0].Code != "en-US" {
		t.Fatal("Languages() must return a copy")
	}

	if language, ok := LookupLanguage("ja-jp"); !ok || language.Name != "Japanese" {
		t.Fatalf("LookupLanguage(ja-jp) = %#v, %v", language, ok)
	}
	if language, ok := LookupLanguage("Chinese (Mandarin)"); !ok || language.Code != "zh-CN" {
		t.Fatalf("LookupLanguage(Chinese) = %#v, %v", language, ok)
	}
	if _, ok := LookupLanguage("Klingon"); ok {
		t.Fatal("LookupLanguage(Klingon) should fail")
	}
	if got := baseLanguage("zh-CN"); got != "zh" {
		t.Fatalf("baseLanguage() = %q", got)
	}
}

func TestPhraseDetectorWaitsForSpeechThenStopsOnSilence(t *testing.T) {
	cfg := CaptureConfig{SampleRate: 100, Timeout: time.Second, MaxPhrase: 10 * time.Second, Silence: 200 * time.Millisecond, SilenceThreshold: 500}
	detector := newPhraseDetector(cfg)
	quiet := make([]int16, 10)
	loud := []int16{0, 900, -900, 0, 0, 0, 0, 0, 0, 0}

	for i := 0; i < 5; i++ {
		if done, err := detector.push(quiet); done || err != nil {
			t.Fatalf("leading silence: done=%v err=%v", done, err)
		}
	}
	if done, err := detector.push(loud); done || err != nil {
		t.Fatalf("speech: done=%v err=%v", done, err)
	}
	if done, _ := detector.push(quiet); done {
		t.Fatal("phrase ended after 10 quiet samples, want 20")
	}
	if done, _ := detector.push(quiet); !done {
		t.Fatal("phrase should end after 20 quiet samples")
	}
	if len(detector.samples) != 30 {
		t.Fatalf("samples = %d, leading silence must be dropped", len(detector.samples))
	}
}

func TestPhraseDetectorTimesOutWithoutSpeech(t *testing.T) {
	detector := newPhraseDetector(CaptureConfig{SampleRate: 100, Timeout: 100 * time.Millisecond, MaxPhrase: time.Second, Silence: time.Second, SilenceThreshold: 500})
	quiet := make([]int16, 5)
	if _, err := detector.push(quiet); err != nil {
		t.Fatalf("first frame error = %v", err)
	}
	if _, err := detector.push(quiet); !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("second frame error = %v, want ErrNoSpeech", err)
	}
}

func TestEncodeWAVHeader(t *testing.T) {
	wav := EncodeWAV([]int16{1, -1, 300}, 16000)
	if len(wav) != 44+6 {
		t.Fatalf("len = %d", len(wav))
	}
	if string(wav[0:4]) != "RIFF" || string(wav[8:12]) != "WAVE" || string(wav[36:40]) != "data" {
		t.Fatalf("header = %q", wav[:44])
	}
	if got := binary.LittleEndian.Uint32(wav[24:28]); got != 16000 {
		t.Fatalf("sample rate = %d", got)
	}
	if got := binary.LittleEndian.Uint32(wav[40:44]); got != 6 {
		t.Fatalf("data size = %d", got)
	}
	if got := int16(binary.LittleEndian.Uint16(wav[48:50])); got != 300 {
		t.Fatalf("last sample = %d", got)
	}
}

func TestAudioFilenameSniffsContainer(t *testing.T) {
	cases := map[string][]byte{
		"audio.wav":  []byte("RIFF...."),
		"audio.webm": {0x1A, 0x45, 0xDF, 0xA3, 0x01},
		"audio.ogg":  []byte("OggS...."),
		"audio.flac": []byte("fLaC...."),
		"audio.mp3":  []byte("ID3....."),
	}
	for want, audio := range cases {
		if got := audioFilename(audio); got != want {
			t.Fatalf("audioFilename(%q) = %q, want %q", audio[:4], got, want)
		}
	}
	if got := audioFilename([]byte("??")); got != "audio.wav" {
		t.Fatalf("unknown payload = %q", got)
	}
}

func TestTranscribeRetriesAfterClientTimeout(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-time.After(300 * time.Millisecond):
			case <-r.Context().Done():
			}
			return
		}
		_, _ = w.Write([]byte(`{"text":"orders per day"}`))
	}))
	defer server.Close()

	client, err := NewWhisperClient(WhisperConfig{BaseURL: server.URL, APIKey: "secret", Timeout: 100 * time.Millisecond, Retry: fastRetry(3)})
	if err != nil {
		t.Fatalf("NewWhisperClient() error = %v", err)
	}
	text, err := client.Transcribe(context.Background(), []byte("RIFFdata"), "en-US")
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if text != "orders per day" {
		t.Fatalf("text = %q", text)
	}
	if got := calls.Load(); got != 2 {
		t.Fatalf("calls = %d, want 2", got)
	}
}
