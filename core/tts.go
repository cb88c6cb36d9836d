package orchestration

import (
	"context"
	"errors"
	"fmt"

	"github.com/koscakluka/ema-live/core/texttospeech"
)

var errTextToSpeechNotConfigured = errors.New("text-to-speech client not configured")

type textToSpeech struct {
	client TextToSpeech
}

func (t *textToSpeech) set(client TextToSpeech) {
	if t != nil {
		t.client = client
	}
}

func (t *textToSpeech) isConfigured() bool {
	return t != nil && t.client != nil
}

func (t *textToSpeech) Connect(ctx context.Context) error {
	if !t.isConfigured() {
		return errTextToSpeechNotConfigured
	}

	if err := t.client.Connect(ctx); err != nil {
		return fmt.Errorf("failed to connect text-to-speech client: %w", err)
	}
	return nil
}

func (t *textToSpeech) SendVoiceConfig(ctx context.Context, voiceID, contextID string) error {
	if !t.isConfigured() {
		return errTextToSpeechNotConfigured
	}

	return t.client.SendVoiceConfig(ctx, voiceID, contextID)
}

func (t *textToSpeech) SendText(ctx context.Context, text, contextID string, end bool) error {
	if !t.isConfigured() {
		return errTextToSpeechNotConfigured
	}

	return t.client.SendText(ctx, text, contextID, end)
}

// ReceiveLoop relays synthesized audio until the engine connection closes or
// ctx is done. Cancellation is not reported as an error.
func (t *textToSpeech) ReceiveLoop(ctx context.Context, opts ...texttospeech.ReceiveOption) error {
	if !t.isConfigured() {
		return errTextToSpeechNotConfigured
	}

	err := t.client.ReceiveLoop(ctx, opts...)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return nil
	}
	return err
}

func (t *textToSpeech) Close() error {
	if !t.isConfigured() {
		return nil
	}

	if err := t.client.Close(); err != nil {
		return fmt.Errorf("failed to close text-to-speech client: %w", err)
	}
	return nil
}
