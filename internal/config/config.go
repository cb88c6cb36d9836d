package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type SpeechToTextProvider string

const (
	SpeechToTextAssemblyAI SpeechToTextProvider = "assemblyai"
	SpeechToTextDeepgram   SpeechToTextProvider = "deepgram"
)

type TextToSpeechProvider string

const (
	TextToSpeechMurf     TextToSpeechProvider = "murf"
	TextToSpeechDeepgram TextToSpeechProvider = "deepgram"
)

type LLMProvider string

const (
	LLMGemini LLMProvider = "gemini"
	LLMOpenAI LLMProvider = "openai"
)

type HistoryStore string

const (
	HistoryStoreMemory HistoryStore = "memory"
	HistoryStoreRedis  HistoryStore = "redis"
)

type Config struct {
	Addr string

	SpeechToText SpeechToTextProvider
	TextToSpeech TextToSpeechProvider
	LLM          LLMProvider
	// LLMModel overrides the provider's default model when set.
	LLMModel string

	AssemblyAIAPIKey string
	MurfAPIKey       string
	GeminiAPIKey     string
	DeepgramAPIKey   string
	OpenAIAPIKey     string

	VoiceID         string
	SampleRate      int
	ShortReplyDelay time.Duration

	HistoryStore HistoryStore
	RedisAddr    string
	RedisTTL     time.Duration

	ReadHeaderTimeout   time.Duration
	ShutdownGracePeriod time.Duration

	// Telemetry export is disabled when OTLPEndpoint is empty.
	OTLPEndpoint string
	OTLPInsecure bool
	ServiceName  string
}

func LoadFromEnv() (Config, error) {
	cfg := Config{
		Addr:                envOr("EMA_ADDR", ":8000"),
		SpeechToText:        SpeechToTextProvider(strings.ToLower(envOr("EMA_STT_PROVIDER", string(SpeechToTextAssemblyAI)))),
		TextToSpeech:        TextToSpeechProvider(strings.ToLower(envOr("EMA_TTS_PROVIDER", string(TextToSpeechMurf)))),
		LLM:                 LLMProvider(strings.ToLower(envOr("EMA_LLM_PROVIDER", string(LLMGemini)))),
		LLMModel:            envOr("EMA_LLM_MODEL", ""),
		AssemblyAIAPIKey:    envOr("ASSEMBLYAI_API_KEY", ""),
		MurfAPIKey:          envOr("MURF_API_KEY", ""),
		GeminiAPIKey:        envOr("GEMINI_API_KEY", ""),
		DeepgramAPIKey:      envOr("DEEPGRAM_API_KEY", ""),
		OpenAIAPIKey:        envOr("OPENAI_API_KEY", ""),
		VoiceID:             envOr("EMA_VOICE_ID", "en-US-amara"),
		SampleRate:          envIntOr("EMA_SAMPLE_RATE", 16000),
		ShortReplyDelay:     envDurationOr("EMA_SHORT_REPLY_DELAY", 500*time.Millisecond),
		HistoryStore:        HistoryStore(strings.ToLower(envOr("EMA_HISTORY_STORE", string(HistoryStoreMemory)))),
		RedisAddr:           envOr("EMA_REDIS_ADDR", "localhost:6379"),
		RedisTTL:            envDurationOr("EMA_REDIS_TTL", 24*time.Hour),
		ReadHeaderTimeout:   envDurationOr("EMA_READ_HEADER_TIMEOUT", 10*time.Second),
		ShutdownGracePeriod: envDurationOr("EMA_SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		OTLPEndpoint:        envOr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:        envBoolOr("OTEL_EXPORTER_OTLP_INSECURE", true),
		ServiceName:         envOr("OTEL_SERVICE_NAME", "ema-live"),
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (cfg Config) validate() error {
	switch cfg.SpeechToText {
	case SpeechToTextAssemblyAI:
		if cfg.AssemblyAIAPIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY is required when EMA_STT_PROVIDER=%s", cfg.SpeechToText)
		}
	case SpeechToTextDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when EMA_STT_PROVIDER=%s", cfg.SpeechToText)
		}
	default:
		return fmt.Errorf("EMA_STT_PROVIDER must be one of assemblyai|deepgram")
	}

	switch cfg.TextToSpeech {
	case TextToSpeechMurf:
		if cfg.MurfAPIKey == "" {
			return fmt.Errorf("MURF_API_KEY is required when EMA_TTS_PROVIDER=%s", cfg.TextToSpeech)
		}
	case TextToSpeechDeepgram:
		if cfg.DeepgramAPIKey == "" {
			return fmt.Errorf("DEEPGRAM_API_KEY is required when EMA_TTS_PROVIDER=%s", cfg.TextToSpeech)
		}
	default:
		return fmt.Errorf("EMA_TTS_PROVIDER must be one of murf|deepgram")
	}

	switch cfg.LLM {
	case LLMGemini:
		if cfg.GeminiAPIKey == "" {
			return fmt.Errorf("GEMINI_API_KEY is required when EMA_LLM_PROVIDER=%s", cfg.LLM)
		}
	case LLMOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return fmt.Errorf("OPENAI_API_KEY is required when EMA_LLM_PROVIDER=%s", cfg.LLM)
		}
	default:
		return fmt.Errorf("EMA_LLM_PROVIDER must be one of gemini|openai")
	}

	switch cfg.HistoryStore {
	case HistoryStoreMemory:
	case HistoryStoreRedis:
		if cfg.RedisAddr == "" {
			return fmt.Errorf("EMA_REDIS_ADDR is required when EMA_HISTORY_STORE=redis")
		}
		if cfg.RedisTTL <= 0 {
			return fmt.Errorf("EMA_REDIS_TTL must be > 0")
		}
	default:
		return fmt.Errorf("EMA_HISTORY_STORE must be one of memory|redis")
	}

	if cfg.SampleRate < 8000 || cfg.SampleRate > 48000 {
		return fmt.Errorf("EMA_SAMPLE_RATE must be between 8000 and 48000")
	}
	if cfg.ShortReplyDelay < 0 {
		return fmt.Errorf("EMA_SHORT_REPLY_DELAY must be >= 0")
	}
	if cfg.ReadHeaderTimeout <= 0 {
		return fmt.Errorf("EMA_READ_HEADER_TIMEOUT must be > 0")
	}
	if cfg.ShutdownGracePeriod <= 0 {
		return fmt.Errorf("EMA_SHUTDOWN_GRACE_PERIOD must be > 0")
	}
	return nil
}

func envOr(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func envIntOr(key string, def int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}

func envBoolOr(key string, def bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	switch strings.ToLower(raw) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	case "0", "false", "f", "no", "n", "off":
		return false
	default:
		return def
	}
}

func envDurationOr(key string, def time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def
	}
	return d
}
