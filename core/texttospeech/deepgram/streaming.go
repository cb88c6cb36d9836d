package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/texttospeech"
)

type websocketMessage struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	ErrMsg      string `json:"err_msg"`
	WarnMsg     string `json:"warn_msg"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	clearMsg = websocketMessage{Type: "Clear"}
	closeMsg = websocketMessage{Type: "Close"}
)

func (c *TextToSpeechClient) Connect(ctx context.Context) error {
	if c.closeStarted.Load() {
		return texttospeech.ErrClosed
	}
	if c.connected.Load() {
		return nil
	}
	if c.apiKey == "" {
		return fmt.Errorf("deepgram api key not found")
	}

	speakURL, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid speak url: %w", err)
	}
	urlValues := speakURL.Query()
	urlValues.Set("encoding", c.encodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(c.encodingInfo.SampleRate))
	urlValues.Set("model", string(c.voice))
	urlValues.Set("container", "none")
	speakURL.RawQuery = urlValues.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, speakURL.String(),
		http.Header{"Authorization": {"token " + c.apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)

	go c.readMessages(conn)
	return nil
}

// SendVoiceConfig only validates the voice: Deepgram binds the voice to the
// connection, so a different voice cannot be applied mid-stream.
func (c *TextToSpeechClient) SendVoiceConfig(_ context.Context, voiceID, contextID string) error {
	c.lastContextID.Store(contextID)
	if voiceID != "" && deepgramVoice(voiceID) != c.voice {
		logger.Debug("ignoring voice change on open deepgram stream", "voice", voiceID, "connected_voice", c.voice)
	}
	return nil
}

// SendText speaks text. end flushes the buffered text, after which Deepgram
// reports the turn as complete.
func (c *TextToSpeechClient) SendText(_ context.Context, text, contextID string, end bool) error {
	c.lastContextID.Store(contextID)
	if text != "" {
		if err := c.sendWebsocketMessage(speakMessage{Type: "Speak", Text: text}); err != nil {
			return fmt.Errorf("failed to send websocket speak message: %w", err)
		}
	}
	if end {
		if err := c.sendWebsocketMessage(flushMsg); err != nil {
			return fmt.Errorf("failed to send websocket flush message: %w", err)
		}
	}
	return nil
}

func (c *TextToSpeechClient) Clear(_ context.Context, _ string) error {
	return c.sendWebsocketMessage(clearMsg)
}

func (c *TextToSpeechClient) ReceiveLoop(ctx context.Context, opts ...texttospeech.ReceiveOption) error {
	if !c.connected.Load() {
		return texttospeech.ErrNotConnected
	}
	options := texttospeech.NewReceiveOptions(opts...)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-c.incoming:
			if !ok {
				options.ConnectionClosedCallback()
				return nil
			}
			contextID, _ := c.lastContextID.Load().(string)

			switch msg.messageType {
			case websocket.BinaryMessage:
				if len(msg.data) > 0 {
					options.AudioChunkCallback(texttospeech.AudioChunk{Payload: msg.data, ContextID: contextID})
				}
			case websocket.TextMessage:
				var parsedMsg websocketMessage
				if err := json.Unmarshal(msg.data, &parsedMsg); err != nil {
					logger.Warn("failed to unmarshal deepgram message", "error", err)
					continue
				}
				switch parsedMsg.Type {
				case "Flushed":
					options.TurnCompleteCallback(contextID)
				case "Cleared", "Metadata":
				case "Warning":
					logger.Warn("deepgram reported a warning", "message", parsedMsg.WarnMsg)
				case "Error":
					message := parsedMsg.ErrMsg
					if message == "" {
						message = parsedMsg.Description
					}
					logger.Error("deepgram reported an error", "message", message)
					options.ErrorCallback(message)
				default:
					logger.Debug("ignoring deepgram message", "type", parsedMsg.Type)
				}
			}
		}
	}
}

// Close closes the connection. Repeated calls are ignored.
func (c *TextToSpeechClient) Close() error {
	if !c.closeStarted.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return nil
	}

	err := c.conn.WriteJSON(closeMsg)
	if agressiveCloseErr := c.conn.Close(); agressiveCloseErr != nil && err != nil {
		return fmt.Errorf("failed to close websocket: %w", errors.Join(err, agressiveCloseErr))
	}
	return nil
}

func (c *TextToSpeechClient) sendWebsocketMessage(msg any) error {
	if c.closeStarted.Load() {
		return texttospeech.ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return texttospeech.ErrNotConnected
	}

	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

func (c *TextToSpeechClient) readMessages(conn *websocket.Conn) {
	defer close(c.incoming)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closeStarted.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("deepgram websocket read failed", "error", err)
			}
			return
		}

		select {
		case c.incoming <- incomingMessage{messageType: msgType, data: msg}:
		case <-c.done:
			return
		}
	}
}
