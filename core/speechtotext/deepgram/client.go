package deepgram

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

const defaultURL = "wss://api.deepgram.com/v1/listen"

// TranscriptionClient streams audio to Deepgram's live listen API. A client
// serves a single transcription.
type TranscriptionClient struct {
	apiKey string
	url    string

	connMu    sync.Mutex
	conn      *websocket.Conn
	lastMsgTs time.Time

	// Reader goroutine state.
	accumulatedTranscript string
	unendedSegment        bool

	cancelSilence func()
	readerDone    chan struct{}

	started      atomic.Bool
	terminated   atomic.Bool
	closeStarted atomic.Bool
}

type ClientOption func(*TranscriptionClient)

// WithURL overrides the listen endpoint.
func WithURL(url string) ClientOption {
	return func(c *TranscriptionClient) {
		if url != "" {
			c.url = url
		}
	}
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	c := &TranscriptionClient{
		apiKey:        apiKey,
		url:           defaultURL,
		cancelSilence: func() {},
		readerDone:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}
