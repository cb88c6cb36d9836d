package texttospeech

import "testing"

func TestNewReceiveOptionsDefaultsToNoopCallbacks(t *testing.T) {
	options := NewReceiveOptions(WithAudioChunkCallback(nil))

	options.AudioChunkCallback(AudioChunk{Payload: []byte{1}})
	options.TurnCompleteCallback("ctx")
	options.ErrorCallback("boom")
	options.ConnectionClosedCallback()
}

func TestNewReceiveOptionsKeepsConfiguredCallbacks(t *testing.T) {
	var chunk AudioChunk
	var completed, reported string
	closed := false

	options := NewReceiveOptions(
		WithAudioChunkCallback(func(c AudioChunk) { chunk = c }),
		WithTurnCompleteCallback(func(id string) { completed = id }),
		WithErrorCallback(func(message string) { reported = message }),
		WithConnectionClosedCallback(func() { closed = true }),
	)

	options.AudioChunkCallback(AudioChunk{Payload: []byte{1, 2}, ContextID: "ctx"})
	options.TurnCompleteCallback("ctx")
	options.ErrorCallback("voice not found")
	options.ConnectionClosedCallback()

	if len(chunk.Payload) != 2 || chunk.ContextID != "ctx" {
		t.Fatalf("unexpected chunk %+v", chunk)
	}
	if completed != "ctx" {
		t.Fatalf("expected turn complete for ctx, got %q", completed)
	}
	if reported != "voice not found" {
		t.Fatalf("expected reported error, got %q", reported)
	}
	if !closed {
		t.Fatalf("expected connection closed callback to run")
	}
}
