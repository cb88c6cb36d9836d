package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/events"
	"github.com/koscakluka/ema-live/core/speechtotext"
)

var errSpeechToTextNotConfigured = errors.New("speech-to-text client not configured")

// speechToText adapts a client's callbacks into transcript events. The
// callbacks run on the client's reader goroutine, so they only submit.
type speechToText struct {
	// client stores the configured speech-to-text implementation.
	client SpeechToText

	emitEvent func(events.TranscriptEvent)
}

func (s *speechToText) set(client SpeechToText) {
	if s != nil {
		s.client = client
	}
}

func (s *speechToText) start(ctx context.Context, encodingInfo audio.EncodingInfo) error {
	if !s.isConfigured() {
		return errSpeechToTextNotConfigured
	}

	sttOptions := []speechtotext.TranscriptionOption{
		speechtotext.WithPartialTranscriptCallback(s.invokePartialTranscript),
		speechtotext.WithFinalTranscriptCallback(s.invokeFinalTranscript),
		speechtotext.WithErrorCallback(s.invokeError),
		speechtotext.WithSessionBeginCallback(func(sessionID string) {
			logger.Debug("transcription session started", "transcription_session_id", sessionID)
		}),
		speechtotext.WithTerminationCallback(s.invokeTermination),
		speechtotext.WithEncodingInfo(encodingInfo),
	}

	if err := s.client.Transcribe(ctx, sttOptions...); err != nil {
		return fmt.Errorf("failed to start transcribing: %w", err)
	}

	return nil
}

func (s *speechToText) SendAudio(audio []byte) error {
	if !s.isConfigured() {
		return nil
	}

	return s.client.SendAudio(audio)
}

func (s *speechToText) Close(ctx context.Context) error {
	if !s.isConfigured() {
		return nil
	}

	if err := s.client.Close(ctx); err != nil {
		return fmt.Errorf("failed to close speech-to-text client: %w", err)
	}
	return nil
}

func (s *speechToText) isConfigured() bool {
	return s != nil && s.client != nil
}

func (s *speechToText) emit(event events.TranscriptEvent) {
	if s.emitEvent != nil {
		s.emitEvent(event)
	}
}

func (s *speechToText) invokePartialTranscript(transcript string) {
	s.emit(events.NewTranscriptPartial(transcript))
}

func (s *speechToText) invokeFinalTranscript(transcript string) {
	s.emit(events.NewTranscriptFinal(transcript))
}

func (s *speechToText) invokeError(message string) {
	s.emit(events.NewTranscriptError(message))
}

func (s *speechToText) invokeTermination(audioDurationSeconds float64) {
	s.emit(events.NewTranscriptClosed(audioDurationSeconds))
}
