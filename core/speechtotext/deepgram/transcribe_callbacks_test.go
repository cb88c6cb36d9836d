package deepgram

import (
	"context"
	"errors"
	"testing"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/speechtotext"
)

type callbackRecorder struct {
	partials []string
	finals   []string
	errors   []string
}

func (r *callbackRecorder) options() speechtotext.TranscriptionOptions {
	return speechtotext.NewTranscriptionOptions(
		speechtotext.WithPartialTranscriptCallback(func(s string) { r.partials = append(r.partials, s) }),
		speechtotext.WithFinalTranscriptCallback(func(s string) { r.finals = append(r.finals, s) }),
		speechtotext.WithErrorCallback(func(s string) { r.errors = append(r.errors, s) }),
	)
}

func TestProcessMessageAccumulatesSegmentsIntoFinal(t *testing.T) {
	client := NewTranscriptionClient("key")
	rec := &callbackRecorder{}
	options := rec.options()

	for _, msg := range []string{
		`{"type":"SpeechStarted"}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"hel"}]}}`,
		`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"hello"}]}}`,
		`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"wor"}]}}`,
		`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[{"transcript":"world"}]}}`,
	} {
		client.processMessage([]byte(msg), options)
	}

	expectedPartials := []string{"hel", "hello", "hello wor", "hello world"}
	if len(rec.partials) != len(expectedPartials) {
		t.Fatalf("expected partials %v, got %v", expectedPartials, rec.partials)
	}
	for i := range expectedPartials {
		if rec.partials[i] != expectedPartials[i] {
			t.Fatalf("expected partials %v, got %v", expectedPartials, rec.partials)
		}
	}
	if len(rec.finals) != 1 || rec.finals[0] != "hello world" {
		t.Fatalf("expected single final %q, got %v", "hello world", rec.finals)
	}
}

func TestProcessMessageUtteranceEndFlushesPendingSegment(t *testing.T) {
	client := NewTranscriptionClient("key")
	rec := &callbackRecorder{}
	options := rec.options()

	client.processMessage([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":"good morning"}]}}`), options)
	client.processMessage([]byte(`{"type":"UtteranceEnd"}`), options)
	client.processMessage([]byte(`{"type":"UtteranceEnd"}`), options)

	if len(rec.finals) != 1 || rec.finals[0] != "good morning" {
		t.Fatalf("expected one final from utterance end, got %v", rec.finals)
	}
}

func TestProcessMessageDiscardsEmptyAndMalformed(t *testing.T) {
	client := NewTranscriptionClient("key")
	rec := &callbackRecorder{}
	options := rec.options()

	client.processMessage([]byte(`not json`), options)
	client.processMessage([]byte(`{"type":"Results","is_final":false,"channel":{"alternatives":[{"transcript":"  "}]}}`), options)
	client.processMessage([]byte(`{"type":"Results","is_final":true,"speech_final":true,"channel":{"alternatives":[]}}`), options)
	client.processMessage([]byte(`{"type":"Error","description":"bad request"}`), options)

	if len(rec.partials) != 0 || len(rec.finals) != 0 {
		t.Fatalf("expected no transcripts, got partials %v finals %v", rec.partials, rec.finals)
	}
	if len(rec.errors) != 1 || rec.errors[0] != "bad request" {
		t.Fatalf("expected error to be forwarded, got %v", rec.errors)
	}
}

func TestConvertEncoding(t *testing.T) {
	if _, err := convertEncoding(audio.GetDefaultEncodingInfo()); err != nil {
		t.Fatalf("expected default encoding to be supported, got %v", err)
	}
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 16000, Format: audio.EncodingMulaw}); err == nil {
		t.Fatalf("expected mulaw at 16kHz to be rejected")
	}
	if _, err := convertEncoding(audio.EncodingInfo{SampleRate: 11025, Format: audio.EncodingLinear16}); err == nil {
		t.Fatalf("expected unsupported sample rate to be rejected")
	}
}

func TestCloseWithoutConnectionIsNoop(t *testing.T) {
	client := NewTranscriptionClient("")
	if err := client.Transcribe(context.Background()); err == nil {
		t.Fatalf("expected missing api key to fail")
	}
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("expected close to be a no-op, got %v", err)
	}
	if err := client.Close(context.Background()); err != nil {
		t.Fatalf("expected repeated close to be a no-op, got %v", err)
	}
	if err := client.SendAudio([]byte{1}); !errors.Is(err, speechtotext.ErrClosed) {
		t.Fatalf("expected ErrClosed after close, got %v", err)
	}
}
