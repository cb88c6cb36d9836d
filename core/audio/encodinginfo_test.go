package audio

import (
	"testing"
	"time"
)

func TestDurationForDefaultEncoding(t *testing.T) {
	info := GetDefaultEncodingInfo()

	// 16000 samples of 2 bytes each is one second of audio.
	if got := info.Duration(32000); got != time.Second {
		t.Fatalf("expected 1s, got %v", got)
	}
	if got := info.Duration(3200); got != 100*time.Millisecond {
		t.Fatalf("expected 100ms, got %v", got)
	}
}

func TestDurationIsZeroForUnknownFormat(t *testing.T) {
	info := EncodingInfo{SampleRate: 16000, Format: encodingFormat("opus")}
	if got := info.Duration(1000); got != 0 {
		t.Fatalf("expected zero duration, got %v", got)
	}
	if !(EncodingInfo{}).IsZero() {
		t.Fatalf("expected empty encoding info to be zero")
	}
}

func TestSilenceValue(t *testing.T) {
	testCases := []struct {
		format   encodingFormat
		expected byte
	}{
		{format: EncodingLinear16, expected: 0},
		{format: EncodingALaw, expected: 0x55},
		{format: EncodingMulaw, expected: 0xFF},
	}

	for _, testCase := range testCases {
		info := EncodingInfo{SampleRate: 8000, Format: testCase.format}
		if got := info.SilenceValue(); got != testCase.expected {
			t.Fatalf("expected silence %#x for %s, got %#x", testCase.expected, testCase.format, got)
		}
	}
}
