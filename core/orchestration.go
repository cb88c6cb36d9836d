package orchestration

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/conversations"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/llms"
	"github.com/koscakluka/ema-live/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

var (
	ErrAlreadyRunning = errors.New("orchestrator already running")

	errTranscriptionEnded = errors.New("transcription stream ended")
)

const teardownTimeout = 5 * time.Second

// Orchestrator drives one live session: it owns the speech-to-text and
// text-to-speech clients it was built with and uses them for a single Run.
type Orchestrator struct {
	sessionID string
	contextID string

	// speechToText is the STT facade used to handle optional client wiring.
	speechToText speechToText
	textToSpeech textToSpeech
	generator    llms.Generator
	history      conversations.Store

	voiceID             string
	shortReplyDelay     time.Duration
	turnCompleteTimeout time.Duration
	encodingInfo        audio.EncodingInfo

	logger  *slog.Logger
	metrics Metrics

	runtime *conversationRuntime
	client  *clientWriter
	started atomic.Bool
}

func NewOrchestrator(sessionID string, opts ...OrchestratorOption) *Orchestrator {
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	o := &Orchestrator{
		sessionID:           sessionID,
		contextID:           uuid.NewString(),
		history:             conversations.NewMemoryStore(),
		voiceID:             DefaultVoiceID,
		shortReplyDelay:     DefaultShortReplyDelay,
		turnCompleteTimeout: DefaultTurnCompleteTimeout,
		encodingInfo:        audio.GetDefaultEncodingInfo(),
		logger:              logger,
		metrics:             noopMetrics{},
		runtime:             newConversationRuntime(),
	}
	o.speechToText.emitEvent = func(event events.TranscriptEvent) { o.runtime.enqueue(event) }

	for _, opt := range opts {
		opt(o)
	}
	o.logger = o.logger.With("session_id", o.sessionID)

	return o
}

func (o *Orchestrator) SessionID() string { return o.sessionID }

// Run drives the session over conn until the client disconnects or a fatal
// error occurs. Every background task is stopped and both vendor clients are
// closed before Run returns. A client disconnect is not an error.
//
// Run may be called once per Orchestrator.
func (o *Orchestrator) Run(ctx context.Context, conn ClientConn) (err error) {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	ctx, span := tracer.Start(ctx, "live session", trace.WithAttributes(
		attribute.String("session.id", o.sessionID),
		attribute.String("session.context_id", o.contextID),
	))
	defer span.End()
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	startedAt := time.Now()
	o.metrics.SessionStarted()
	defer func() { o.metrics.SessionEnded(time.Since(startedAt)) }()

	o.client = newClientWriter(conn)
	sessionCtx, cancel := context.WithCancel(ctx)
	group, groupCtx := errgroup.WithContext(sessionCtx)

	defer func() {
		cancel()
		o.runtime.end()
		if waitErr := group.Wait(); waitErr != nil {
			o.logger.Error("background task failed", "error", waitErr)
			err = errors.Join(err, waitErr)
		}

		teardownCtx, teardownCancel := context.WithTimeout(context.WithoutCancel(ctx), teardownTimeout)
		defer teardownCancel()
		if closeErr := o.speechToText.Close(teardownCtx); closeErr != nil {
			o.logger.Warn("closing speech-to-text failed", "error", closeErr)
			span.RecordError(closeErr)
		}
		if closeErr := o.textToSpeech.Close(); closeErr != nil {
			o.logger.Warn("closing text-to-speech failed", "error", closeErr)
			span.RecordError(closeErr)
		}
		o.logger.Info("session ended", "duration", time.Since(startedAt))
	}()

	if err := o.textToSpeech.Connect(sessionCtx); err != nil {
		o.metrics.VendorError("text_to_speech")
		o.client.sendError(fmt.Sprintf("Failed to connect to speech synthesis: %v", err))
		return fmt.Errorf("failed to set up text-to-speech: %w", err)
	}

	group.Go(o.worker(groupCtx, "audio relay", o.relayAudio))
	group.Go(o.worker(groupCtx, "transcript dispatcher", func(ctx context.Context) error {
		return o.runtime.dispatch(ctx, o.logger, o.handleTranscriptEvent)
	}))
	group.Go(o.worker(groupCtx, "turn", func(ctx context.Context) error {
		return o.runtime.turns.run(ctx, o.processTurn)
	}))

	if err := o.speechToText.start(sessionCtx, o.encodingInfo); err != nil {
		o.metrics.VendorError("speech_to_text")
		o.client.sendError(fmt.Sprintf("Failed to connect to transcription: %v", err))
		return fmt.Errorf("failed to set up speech-to-text: %w", err)
	}

	o.logger.Info("session started")
	return o.readClient(groupCtx, conn)
}

// readClient forwards client audio until the client goes away. A failing
// background task cancels ctx, which closes conn to unblock the read.
func (o *Orchestrator) readClient(ctx context.Context, conn ClientConn) error {
	hookDone := withContextCancelHook(ctx, func() { _ = conn.Close() })
	defer close(hookDone)

	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			o.client.markDisconnected()
			if ctx.Err() == nil {
				o.logger.Info("client disconnected", "reason", err)
			}
			return nil
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := o.speechToText.SendAudio(data); err != nil {
				o.logger.Warn("forwarding audio failed", "error", err)
			}
		default:
			o.logger.Debug("ignoring non-audio client frame", "message_type", msgType)
		}
	}
}

// worker wraps a background task so a failure is reported to the client
// before the session is torn down. Stopping on cancellation is not a failure.
func (o *Orchestrator) worker(ctx context.Context, name string, run func(context.Context) error) func() error {
	safeRun := panicSafeNamedWorker(name, run)
	return func() error {
		err := safeRun(ctx)
		if ctx.Err() != nil && errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			o.client.sendError(err.Error())
		}
		return err
	}
}

func (o *Orchestrator) handleTranscriptEvent(ctx context.Context, event events.TranscriptEvent) error {
	switch e := event.(type) {
	case events.TranscriptPartial:
		o.client.sendPartialTranscript(e.Text)

	case events.TranscriptFinal:
		o.client.sendFinalTranscript(e.Text)
		o.runtime.turns.push(e.Text)

	case events.TranscriptError:
		o.metrics.VendorError("speech_to_text")
		o.logger.Warn("transcription error", "message", e.Message)
		trace.SpanFromContext(ctx).AddEvent("transcription error", trace.WithAttributes(attribute.String("error", e.Message)))
		o.client.sendError(e.Message)

	case events.TranscriptClosed:
		// The runtime ends before teardown closes the bridge, so a closed
		// event seen here was caused by the engine.
		o.logger.Warn("transcription closed by engine", "audio_duration_seconds", e.DurationSeconds)
		return errTranscriptionEnded
	}
	return nil
}

func (o *Orchestrator) relayAudio(ctx context.Context) error {
	return o.textToSpeech.ReceiveLoop(ctx,
		texttospeech.WithAudioChunkCallback(func(chunk texttospeech.AudioChunk) {
			o.metrics.AudioChunkRelayed(len(chunk.Payload))
			o.client.sendAudioChunk(chunk.Payload)
		}),
		texttospeech.WithTurnCompleteCallback(func(string) {
			o.client.sendSpeechComplete()
			o.runtime.speech.markComplete()
		}),
		texttospeech.WithErrorCallback(func(message string) {
			o.metrics.VendorError("text_to_speech")
			o.logger.Warn("speech synthesis error", "message", message)
			o.client.sendError(message)
			// The engine will not finish a turn it failed.
			o.runtime.speech.markComplete()
		}),
		texttospeech.WithConnectionClosedCallback(func() {
			o.logger.Info("speech synthesis connection closed")
			o.client.sendSpeechComplete()
			o.runtime.speech.markClosed()
		}),
	)
}
