package speechtotext

import (
	"testing"

	"github.com/koscakluka/ema-live/core/audio"
)

func TestNewTranscriptionOptionsDefaultsToNoopCallbacks(t *testing.T) {
	options := NewTranscriptionOptions(WithPartialTranscriptCallback(nil))

	options.PartialTranscriptCallback("partial")
	options.FinalTranscriptCallback("final")
	options.ErrorCallback("error")
	options.SessionBeginCallback("id")
	options.TerminationCallback(1)

	if options.EncodingInfo != audio.GetDefaultEncodingInfo() {
		t.Fatalf("expected default encoding, got %+v", options.EncodingInfo)
	}
}

func TestNewTranscriptionOptionsKeepsConfiguredCallbacks(t *testing.T) {
	var partial, final, reported string
	options := NewTranscriptionOptions(
		WithPartialTranscriptCallback(func(s string) { partial = s }),
		WithFinalTranscriptCallback(func(s string) { final = s }),
		WithErrorCallback(func(s string) { reported = s }),
		WithEncodingInfo(audio.EncodingInfo{SampleRate: 8000, Format: audio.EncodingMulaw}),
	)

	options.PartialTranscriptCallback("hel")
	options.FinalTranscriptCallback("hello")
	options.ErrorCallback("bad audio")

	if partial != "hel" || final != "hello" || reported != "bad audio" {
		t.Fatalf("unexpected callback values: %q %q %q", partial, final, reported)
	}
	if options.EncodingInfo.SampleRate != 8000 {
		t.Fatalf("expected configured sample rate, got %d", options.EncodingInfo.SampleRate)
	}
}

func TestWithEncodingInfoIgnoresZeroValue(t *testing.T) {
	options := NewTranscriptionOptions(WithEncodingInfo(audio.EncodingInfo{}))
	if options.EncodingInfo != audio.GetDefaultEncodingInfo() {
		t.Fatalf("expected default encoding when zero value passed, got %+v", options.EncodingInfo)
	}
}
