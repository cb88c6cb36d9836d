package orchestration

import (
	"encoding/base64"
	"sync"
	"sync/atomic"
	"time"
)

const clientWriteTimeout = 10 * time.Second

// ClientConn is the live connection to the user's client. *websocket.Conn
// satisfies it.
type ClientConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteJSON(v any) error
	Close() error
}

type clientMessageType string

const (
	clientMessagePartialTranscript clientMessageType = "partial_transcript"
	clientMessageFinalTranscript   clientMessageType = "final_transcript"
	clientMessageAudioChunk        clientMessageType = "audio_chunk"
	clientMessageSpeechComplete    clientMessageType = "speech_complete"
	clientMessageError             clientMessageType = "error"
)

type clientMessage struct {
	Type      clientMessageType `json:"type"`
	Text      string            `json:"text,omitempty"`
	AudioData string            `json:"audio_data,omitempty"`
	Message   string            `json:"message,omitempty"`
}

// clientWriter serializes writes to the client. Once the client is gone
// every send is dropped.
type clientWriter struct {
	mu           sync.Mutex
	conn         ClientConn
	disconnected atomic.Bool
}

func newClientWriter(conn ClientConn) *clientWriter {
	return &clientWriter{conn: conn}
}

func (w *clientWriter) markDisconnected() {
	w.disconnected.Store(true)
}

func (w *clientWriter) send(msg clientMessage) bool {
	if w.disconnected.Load() {
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.disconnected.Load() {
		return false
	}

	if deadliner, ok := w.conn.(interface{ SetWriteDeadline(time.Time) error }); ok {
		_ = deadliner.SetWriteDeadline(time.Now().Add(clientWriteTimeout))
	}
	if err := w.conn.WriteJSON(msg); err != nil {
		logger.Debug("client write failed, treating as disconnect", "type", msg.Type, "error", err)
		w.disconnected.Store(true)
		return false
	}
	return true
}

func (w *clientWriter) sendPartialTranscript(text string) bool {
	return w.send(clientMessage{Type: clientMessagePartialTranscript, Text: text})
}

func (w *clientWriter) sendFinalTranscript(text string) bool {
	return w.send(clientMessage{Type: clientMessageFinalTranscript, Text: text})
}

func (w *clientWriter) sendAudioChunk(payload []byte) bool {
	return w.send(clientMessage{Type: clientMessageAudioChunk, AudioData: base64.StdEncoding.EncodeToString(payload)})
}

func (w *clientWriter) sendSpeechComplete() bool {
	return w.send(clientMessage{Type: clientMessageSpeechComplete})
}

const unknownErrorMessage = "unknown error"

// sendError always sends a message text, engines sometimes report none.
func (w *clientWriter) sendError(message string) bool {
	if message == "" {
		message = unknownErrorMessage
	}
	return w.send(clientMessage{Type: clientMessageError, Message: message})
}
