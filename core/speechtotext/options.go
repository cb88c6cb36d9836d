package speechtotext

import (
	"errors"

	"github.com/koscakluka/ema-live/core/audio"
)

// ErrClosed is returned by SendAudio once the client has been closed.
var ErrClosed = errors.New("speech-to-text client closed")

// TranscriptionOptions holds the callbacks a client invokes while
// transcribing. Callbacks run on the client's reader goroutine in the order
// the engine emitted the underlying events; they must not block.
type TranscriptionOptions struct {
	PartialTranscriptCallback func(transcript string)
	FinalTranscriptCallback   func(transcript string)
	ErrorCallback             func(message string)

	SessionBeginCallback func(sessionID string)
	// TerminationCallback receives the duration of audio the engine processed.
	TerminationCallback func(audioDurationSeconds float64)

	EncodingInfo audio.EncodingInfo
}

type TranscriptionOption func(*TranscriptionOptions)

// NewTranscriptionOptions applies opts over defaults where every callback is
// a no-op and the encoding is [audio.GetDefaultEncodingInfo].
func NewTranscriptionOptions(opts ...TranscriptionOption) TranscriptionOptions {
	options := TranscriptionOptions{
		PartialTranscriptCallback: func(string) {},
		FinalTranscriptCallback:   func(string) {},
		ErrorCallback:             func(string) {},
		SessionBeginCallback:      func(string) {},
		TerminationCallback:       func(float64) {},
		EncodingInfo:              audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithPartialTranscriptCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.PartialTranscriptCallback = callback
		}
	}
}

func WithFinalTranscriptCallback(callback func(transcript string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.FinalTranscriptCallback = callback
		}
	}
}

// WithErrorCallback receives errors reported by the engine. These do not end
// the transcription.
func WithErrorCallback(callback func(message string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.ErrorCallback = callback
		}
	}
}

func WithSessionBeginCallback(callback func(sessionID string)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.SessionBeginCallback = callback
		}
	}
}

func WithTerminationCallback(callback func(audioDurationSeconds float64)) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if callback != nil {
			o.TerminationCallback = callback
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) TranscriptionOption {
	return func(o *TranscriptionOptions) {
		if !encodingInfo.IsZero() {
			o.EncodingInfo = encodingInfo
		}
	}
}
