package server

import (
	"context"
	"fmt"
	"time"

	orchestration "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/conversations"
	"github.com/koscakluka/ema-live/core/llms"
	"github.com/koscakluka/ema-live/core/llms/gemini"
	"github.com/koscakluka/ema-live/core/llms/openai"
	"github.com/koscakluka/ema-live/core/speechtotext/assemblyai"
	deepgramstt "github.com/koscakluka/ema-live/core/speechtotext/deepgram"
	deepgramtts "github.com/koscakluka/ema-live/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-live/core/texttospeech/murf"
	"github.com/koscakluka/ema-live/internal/config"
	"github.com/redis/go-redis/v9"
)

const redisPingTimeout = 5 * time.Second

type responseEngine interface {
	llms.Generator
	llms.Prompter
}

// BuildDependencies wires the vendor clients selected by cfg. The returned
// closer releases process-wide resources such as the redis connection.
func BuildDependencies(ctx context.Context, cfg config.Config) (Dependencies, func() error, error) {
	noopCloser := func() error { return nil }

	newSTT, err := speechToTextFactory(cfg)
	if err != nil {
		return Dependencies{}, noopCloser, err
	}
	newTTS, err := textToSpeechFactory(cfg)
	if err != nil {
		return Dependencies{}, noopCloser, err
	}
	engine, err := newResponseEngine(ctx, cfg)
	if err != nil {
		return Dependencies{}, noopCloser, err
	}
	history, closer, err := newHistoryStore(ctx, cfg)
	if err != nil {
		return Dependencies{}, noopCloser, err
	}

	return Dependencies{
		NewSpeechToText: newSTT,
		NewTextToSpeech: newTTS,
		Generator:       engine,
		Prompter:        engine,
		History:         history,
		SessionOptions: []orchestration.OrchestratorOption{
			orchestration.WithVoiceID(cfg.VoiceID),
			orchestration.WithShortReplyDelay(cfg.ShortReplyDelay),
			orchestration.WithEncodingInfo(audio.EncodingInfo{SampleRate: cfg.SampleRate, Format: audio.EncodingLinear16}),
		},
	}, closer, nil
}

func speechToTextFactory(cfg config.Config) (func() (orchestration.SpeechToText, error), error) {
	switch cfg.SpeechToText {
	case config.SpeechToTextAssemblyAI:
		return func() (orchestration.SpeechToText, error) {
			return assemblyai.NewTranscriptionClient(cfg.AssemblyAIAPIKey), nil
		}, nil
	case config.SpeechToTextDeepgram:
		return func() (orchestration.SpeechToText, error) {
			return deepgramstt.NewTranscriptionClient(cfg.DeepgramAPIKey), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported speech-to-text provider %q", cfg.SpeechToText)
	}
}

func textToSpeechFactory(cfg config.Config) (func() (orchestration.TextToSpeech, error), error) {
	switch cfg.TextToSpeech {
	case config.TextToSpeechMurf:
		return func() (orchestration.TextToSpeech, error) {
			return murf.NewTextToSpeechClient(cfg.MurfAPIKey), nil
		}, nil
	case config.TextToSpeechDeepgram:
		return func() (orchestration.TextToSpeech, error) {
			return deepgramtts.NewTextToSpeechClient(cfg.DeepgramAPIKey, deepgramTTSVoice(cfg.VoiceID))
		}, nil
	default:
		return nil, fmt.Errorf("unsupported text-to-speech provider %q", cfg.TextToSpeech)
	}
}

// deepgramTTSVoice falls back to the default Deepgram voice when voiceID names
// a voice of another engine.
func deepgramTTSVoice(voiceID string) string {
	for _, voice := range deepgramtts.GetAvailableVoices() {
		if string(voice) == voiceID {
			return voiceID
		}
	}
	return ""
}

func newResponseEngine(ctx context.Context, cfg config.Config) (responseEngine, error) {
	switch cfg.LLM {
	case config.LLMGemini:
		return gemini.NewClient(ctx, cfg.GeminiAPIKey, gemini.WithModel(cfg.LLMModel))
	case config.LLMOpenAI:
		return openai.NewClient(cfg.OpenAIAPIKey, openai.WithModel(cfg.LLMModel))
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", cfg.LLM)
	}
}

func newHistoryStore(ctx context.Context, cfg config.Config) (conversations.Store, func() error, error) {
	noopCloser := func() error { return nil }
	if cfg.HistoryStore != config.HistoryStoreRedis {
		return conversations.NewMemoryStore(), noopCloser, nil
	}

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, noopCloser, fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
	}

	store, err := conversations.NewRedisStore(client, cfg.RedisTTL)
	if err != nil {
		_ = client.Close()
		return nil, noopCloser, err
	}
	return store, client.Close, nil
}
