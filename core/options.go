package orchestration

import (
	"context"
	"log/slog"
	"time"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/conversations"
	"github.com/koscakluka/ema-live/core/llms"
	"github.com/koscakluka/ema-live/core/speechtotext"
	"github.com/koscakluka/ema-live/core/texttospeech"
)

const (
	DefaultVoiceID         = "en-US-amara"
	DefaultShortReplyDelay = 500 * time.Millisecond

	// DefaultTurnCompleteTimeout bounds how long the next turn waits for the
	// engine to finish synthesizing the previous one.
	DefaultTurnCompleteTimeout = 30 * time.Second

	// shortReplyChunkThreshold is the chunk count below which a reply is
	// considered short and the end marker is delayed.
	shortReplyChunkThreshold = 3
)

type OrchestratorOption func(*Orchestrator)

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
	Close(ctx context.Context) error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) {
		o.speechToText.set(client)
	}
}

type TextToSpeech interface {
	Connect(ctx context.Context) error
	SendVoiceConfig(ctx context.Context, voiceID, contextID string) error
	SendText(ctx context.Context, text, contextID string, end bool) error
	ReceiveLoop(ctx context.Context, opts ...texttospeech.ReceiveOption) error
	Close() error
}

func WithTextToSpeechClient(client TextToSpeech) OrchestratorOption {
	return func(o *Orchestrator) {
		o.textToSpeech.set(client)
	}
}

func WithResponseGenerator(generator llms.Generator) OrchestratorOption {
	return func(o *Orchestrator) {
		if generator != nil {
			o.generator = generator
		}
	}
}

// WithHistory sets the store turns are recorded in. Sessions default to a
// private in-memory store.
func WithHistory(store conversations.Store) OrchestratorOption {
	return func(o *Orchestrator) {
		if store != nil {
			o.history = store
		}
	}
}

func WithLogger(logger *slog.Logger) OrchestratorOption {
	return func(o *Orchestrator) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithMetrics(metrics Metrics) OrchestratorOption {
	return func(o *Orchestrator) {
		if metrics != nil {
			o.metrics = metrics
		}
	}
}

func WithVoiceID(voiceID string) OrchestratorOption {
	return func(o *Orchestrator) {
		if voiceID != "" {
			o.voiceID = voiceID
		}
	}
}

// WithShortReplyDelay sets how long the end marker is held back for replies
// of fewer than three chunks. Zero disables the delay.
func WithShortReplyDelay(delay time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if delay >= 0 {
			o.shortReplyDelay = delay
		}
	}
}

func WithTurnCompleteTimeout(timeout time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if timeout > 0 {
			o.turnCompleteTimeout = timeout
		}
	}
}

// WithEncodingInfo describes the audio frames the client sends.
func WithEncodingInfo(encodingInfo audio.EncodingInfo) OrchestratorOption {
	return func(o *Orchestrator) {
		if !encodingInfo.IsZero() {
			o.encodingInfo = encodingInfo
		}
	}
}

// WithContextID fixes the synthesis context id instead of generating one.
func WithContextID(contextID string) OrchestratorOption {
	return func(o *Orchestrator) {
		if contextID != "" {
			o.contextID = contextID
		}
	}
}

// Metrics receives session level measurements.
type Metrics interface {
	SessionStarted()
	SessionEnded(duration time.Duration)
	TurnCompleted(duration time.Duration, chunks int)
	AudioChunkRelayed(bytes int)
	VendorError(component string)
}

type noopMetrics struct{}

func (noopMetrics) SessionStarted() {}
func (noopMetrics) SessionEnded(time.Duration) {}
func (noopMetrics) TurnCompleted(time.Duration, int) {}
func (noopMetrics) AudioChunkRelayed(int) {}
func (noopMetrics) VendorError(string) {}
