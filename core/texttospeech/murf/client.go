package murf

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const (
	defaultURL        = "wss://global.api.murf.ai/v1/speech/stream-input"
	defaultSampleRate = 24000
	defaultFormat     = "WAV"
	defaultModel      = "FALCON"

	writeTimeout          = 10 * time.Second
	incomingQueueCapacity = 64
)

// TextToSpeechClient is a single streaming connection to Murf. Every message
// it sends is tagged with a context id so the engine can group one turn.
type TextToSpeechClient struct {
	apiKey     string
	url        string
	sampleRate int
	format     string
	model      string

	writeMu sync.Mutex
	conn    *websocket.Conn

	incoming chan []byte
	done     chan struct{}
	// lastContextID backs inbound messages that omit their context id.
	lastContextID atomic.Value

	connected    atomic.Bool
	closeStarted atomic.Bool
}

type ClientOption func(*TextToSpeechClient)

// WithURL overrides the stream-input endpoint.
func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithSampleRate(sampleRate int) ClientOption {
	return func(c *TextToSpeechClient) {
		if sampleRate > 0 {
			c.sampleRate = sampleRate
		}
	}
}

func WithModel(model string) ClientOption {
	return func(c *TextToSpeechClient) {
		if model != "" {
			c.model = model
		}
	}
}

func NewTextToSpeechClient(apiKey string, opts ...ClientOption) *TextToSpeechClient {
	c := &TextToSpeechClient{
		apiKey:     apiKey,
		url:        defaultURL,
		sampleRate: defaultSampleRate,
		format:     defaultFormat,
		model:      defaultModel,
		incoming:   make(chan []byte, incomingQueueCapacity),
		done:       make(chan struct{}),
	}
	c.lastContextID.Store("")
	for _, opt := range opts {
		opt(c)
	}
	return c
}
