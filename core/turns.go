package orchestration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/koscakluka/ema-live/core/conversations"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var errResponseGeneratorNotConfigured = errors.New("response generator not configured")

// processTurn answers one final transcript: it records the user message,
// streams the generated reply into speech synthesis under the session context
// id and records the reply once the synthesis turn has been closed. It returns
// after the engine finished the turn so the next one starts on a clear context.
func (o *Orchestrator) processTurn(ctx context.Context, transcript string) (err error) {
	ctx, span := tracer.Start(ctx, "process turn", trace.WithAttributes(
		attribute.Int("turn.transcript_length", len(transcript)),
	))
	defer span.End()
	defer func() {
		if err != nil && ctx.Err() != nil {
			// Session is shutting down, the turn is abandoned.
			span.AddEvent("turn cancelled")
			err = nil
			return
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	if o.generator == nil {
		return errResponseGeneratorNotConfigured
	}

	startedAt := time.Now()
	o.runtime.speech.begin()
	if err := o.history.Append(ctx, o.sessionID, conversations.RoleUser, transcript); err != nil {
		return fmt.Errorf("failed to record user message: %w", err)
	}

	prompt, err := conversations.CompilePrompt(ctx, o.history, o.sessionID)
	if err != nil {
		return fmt.Errorf("failed to compile prompt: %w", err)
	}

	if err := o.textToSpeech.SendVoiceConfig(ctx, o.voiceID, o.contextID); err != nil {
		return fmt.Errorf("failed to send voice config: %w", err)
	}

	var reply strings.Builder
	chunks := 0
	for chunk := range o.generator.Generate(ctx, prompt) {
		if err := o.textToSpeech.SendText(ctx, chunk.Content, o.contextID, false); err != nil {
			return fmt.Errorf("failed to send text to speech synthesis: %w", err)
		}
		reply.WriteString(chunk.Content)
		chunks++
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	span.SetAttributes(attribute.Int("turn.chunks", chunks))

	if chunks < shortReplyChunkThreshold {
		// Short replies are closed too early for the engine otherwise.
		if err := sleepContext(ctx, o.shortReplyDelay); err != nil {
			return err
		}
	}

	if err := o.textToSpeech.SendText(ctx, "", o.contextID, true); err != nil {
		return fmt.Errorf("failed to end speech synthesis turn: %w", err)
	}

	if err := o.history.Append(ctx, o.sessionID, conversations.RoleAssistant, reply.String()); err != nil {
		return fmt.Errorf("failed to record assistant message: %w", err)
	}

	finished, err := o.runtime.speech.await(ctx, o.turnCompleteTimeout)
	if err != nil {
		return err
	}
	if !finished {
		o.logger.Warn("speech synthesis did not complete turn", "context_id", o.contextID, "timeout", o.turnCompleteTimeout)
		span.AddEvent("turn complete timed out")
	}

	o.metrics.TurnCompleted(time.Since(startedAt), chunks)
	o.logger.Debug("turn completed", "chunks", chunks, "reply_length", reply.Len())
	return nil
}
