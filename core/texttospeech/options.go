package texttospeech

import "errors"

var (
	// ErrNotConnected is returned when sending before Connect succeeded.
	ErrNotConnected = errors.New("text-to-speech client not connected")
	// ErrClosed is returned when sending after Close.
	ErrClosed = errors.New("text-to-speech client closed")
)

// AudioChunk is one fragment of synthesized audio. Payload is opaque encoded
// audio as produced by the engine.
type AudioChunk struct {
	Payload   []byte
	ContextID string
}

type ReceiveOptions struct {
	// AudioChunkCallback is called for every audio fragment, in receipt order.
	AudioChunkCallback func(AudioChunk)
	// TurnCompleteCallback is called once the engine finished synthesizing
	// everything sent for a context.
	TurnCompleteCallback func(contextID string)
	// ErrorCallback is called for errors the engine reports in-band. The
	// connection stays open.
	ErrorCallback func(message string)
	// ConnectionClosedCallback is called once when the engine connection goes
	// away. The receive loop returns right after.
	ConnectionClosedCallback func()
}

type ReceiveOption func(*ReceiveOptions)

// NewReceiveOptions applies opts over no-op defaults.
func NewReceiveOptions(opts ...ReceiveOption) ReceiveOptions {
	options := ReceiveOptions{
		AudioChunkCallback:       func(AudioChunk) {},
		TurnCompleteCallback:     func(string) {},
		ErrorCallback:            func(string) {},
		ConnectionClosedCallback: func() {},
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}

func WithAudioChunkCallback(callback func(AudioChunk)) ReceiveOption {
	return func(o *ReceiveOptions) {
		if callback != nil {
			o.AudioChunkCallback = callback
		}
	}
}

func WithTurnCompleteCallback(callback func(contextID string)) ReceiveOption {
	return func(o *ReceiveOptions) {
		if callback != nil {
			o.TurnCompleteCallback = callback
		}
	}
}

func WithErrorCallback(callback func(message string)) ReceiveOption {
	return func(o *ReceiveOptions) {
		if callback != nil {
			o.ErrorCallback = callback
		}
	}
}

func WithConnectionClosedCallback(callback func()) ReceiveOption {
	return func(o *ReceiveOptions) {
		if callback != nil {
			o.ConnectionClosedCallback = callback
		}
	}
}
