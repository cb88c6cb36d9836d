package events

import "testing"

func TestConstructorsEmitExpectedKinds(t *testing.T) {
	testCases := []struct {
		name     string
		event    TranscriptEvent
		expected Kind
	}{
		{name: "partial", event: NewTranscriptPartial("hel"), expected: KindTranscriptPartial},
		{name: "final", event: NewTranscriptFinal("hello"), expected: KindTranscriptFinal},
		{name: "error", event: NewTranscriptError("boom"), expected: KindTranscriptError},
		{name: "closed", event: NewTranscriptClosed(1.5), expected: KindTranscriptClosed},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			if got := testCase.event.Kind(); got != testCase.expected {
				t.Fatalf("expected kind %q, got %q", testCase.expected, got)
			}
			if testCase.event.OccurredAt().IsZero() {
				t.Fatalf("expected occurrence time to be set")
			}
			if got := testCase.event.Kind().Namespace(); got != "transcript" {
				t.Fatalf("expected transcript namespace, got %q", got)
			}
		})
	}
}

func TestTranscriptEventsCarryPayload(t *testing.T) {
	var event TranscriptEvent = NewTranscriptFinal("hello world")

	switch e := event.(type) {
	case TranscriptFinal:
		if e.Text != "hello world" {
			t.Fatalf("expected final text %q, got %q", "hello world", e.Text)
		}
	default:
		t.Fatalf("expected TranscriptFinal, got %T", event)
	}

	closed := NewTranscriptClosed(2.25)
	if closed.DurationSeconds != 2.25 {
		t.Fatalf("expected duration 2.25, got %v", closed.DurationSeconds)
	}
}
