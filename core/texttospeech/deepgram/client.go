package deepgram

import (
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
)

const (
	defaultURL            = "wss://api.deepgram.com/v1/speak"
	incomingQueueCapacity = 64
)

type deepgramVoice string

const defaultVoice deepgramVoice = "aura-2-thalia-en"

func GetAvailableVoices() []deepgramVoice {
	return []deepgramVoice{
		"aura-2-thalia-en",
		"aura-2-andromeda-en",
		"aura-2-helena-en",
		"aura-2-apollo-en",
		"aura-2-arcas-en",
		"aura-2-aries-en",
	}
}

// TextToSpeechClient is a single streaming connection to Deepgram's speak
// API. The voice is fixed per connection.
type TextToSpeechClient struct {
	apiKey       string
	url          string
	voice        deepgramVoice
	encodingInfo audio.EncodingInfo

	mu   sync.Mutex
	conn *websocket.Conn

	incoming      chan incomingMessage
	done          chan struct{}
	lastContextID atomic.Value

	connected    atomic.Bool
	closeStarted atomic.Bool
}

type incomingMessage struct {
	messageType int
	data        []byte
}

type ClientOption func(*TextToSpeechClient)

// WithURL overrides the speak endpoint.
func WithURL(url string) ClientOption {
	return func(c *TextToSpeechClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *TextToSpeechClient) {
		if !encodingInfo.IsZero() {
			c.encodingInfo = encodingInfo
		}
	}
}

func NewTextToSpeechClient(apiKey string, voice string, opts ...ClientOption) (*TextToSpeechClient, error) {
	client := &TextToSpeechClient{
		apiKey:       apiKey,
		url:          defaultURL,
		voice:        defaultVoice,
		encodingInfo: audio.EncodingInfo{SampleRate: 24000, Format: audio.EncodingLinear16},
		incoming:     make(chan incomingMessage, incomingQueueCapacity),
		done:         make(chan struct{}),
	}
	client.lastContextID.Store("")

	if voice != "" {
		if !slices.Contains(GetAvailableVoices(), deepgramVoice(voice)) {
			return nil, fmt.Errorf("invalid voice %q", voice)
		}
		client.voice = deepgramVoice(voice)
	}

	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}
