package assemblyai

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
)

const (
	defaultURL = "wss://streaming.assemblyai.com/v3/ws"

	defaultTerminateTimeout = 3 * time.Second
)

// TranscriptionClient streams audio to the AssemblyAI v3 realtime API. A
// client serves a single transcription.
type TranscriptionClient struct {
	apiKey           string
	url              string
	dialer           *websocket.Dialer
	terminateTimeout time.Duration

	connMu sync.Mutex
	conn   *websocket.Conn

	encoding   audio.EncodingInfo
	readerDone chan struct{}

	started      atomic.Bool
	terminated   atomic.Bool
	closeStarted atomic.Bool
	sentBytes    atomic.Int64
}

type ClientOption func(*TranscriptionClient)

// WithURL overrides the streaming endpoint.
func WithURL(url string) ClientOption {
	return func(c *TranscriptionClient) {
		if url != "" {
			c.url = url
		}
	}
}

// WithTerminateTimeout bounds how long Close waits for the engine to confirm
// termination before dropping the connection.
func WithTerminateTimeout(timeout time.Duration) ClientOption {
	return func(c *TranscriptionClient) {
		if timeout > 0 {
			c.terminateTimeout = timeout
		}
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:           apiKey,
		url:              defaultURL,
		dialer:           websocket.DefaultDialer,
		terminateTimeout: defaultTerminateTimeout,
		readerDone:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
