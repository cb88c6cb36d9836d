package murf

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/texttospeech"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Connect opens the streaming connection and starts buffering inbound
// messages for [TextToSpeechClient.ReceiveLoop].
func (c *TextToSpeechClient) Connect(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "connect murf")
	defer span.End()

	if c.closeStarted.Load() {
		return texttospeech.ErrClosed
	}
	if c.connected.Load() {
		return nil
	}
	if c.apiKey == "" {
		err := fmt.Errorf("murf api key not found")
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	streamURL, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid stream url: %w", err)
	}
	queryParams := streamURL.Query()
	queryParams.Set("api-key", c.apiKey)
	queryParams.Set("sample_rate", strconv.Itoa(c.sampleRate))
	queryParams.Set("channel_type", "MONO")
	queryParams.Set("format", c.format)
	queryParams.Set("model", c.model)
	streamURL.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, streamURL.String(), nil)
	if err != nil {
		err = fmt.Errorf("failed to open socket connection to murf: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	c.connected.Store(true)

	go c.readMessages(conn)
	return nil
}

// SendVoiceConfig selects the voice used for contextID.
func (c *TextToSpeechClient) SendVoiceConfig(_ context.Context, voiceID, contextID string) error {
	return c.send(voiceConfigMessage{VoiceConfig: voiceConfig{VoiceID: voiceID}, ContextID: contextID})
}

// SendText queues text for synthesis. Messages are delivered in call order;
// end marks the last text of contextID.
func (c *TextToSpeechClient) SendText(_ context.Context, text, contextID string, end bool) error {
	c.lastContextID.Store(contextID)
	return c.send(textMessage{Text: text, End: end, ContextID: contextID})
}

// Clear drops engine state for contextID so it can be reused.
func (c *TextToSpeechClient) Clear(_ context.Context, contextID string) error {
	return c.send(clearMessage{Clear: true, ContextID: contextID})
}

// ReceiveLoop dispatches inbound messages to the callbacks in opts until the
// connection closes (returns nil) or ctx is done (returns ctx.Err()).
// Malformed messages are logged and skipped.
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
			c.processMessage(ctx, msg, options)
		}
	}
}

func (c *TextToSpeechClient) processMessage(ctx context.Context, msg []byte, options texttospeech.ReceiveOptions) {
	var parsedMsg audioMessage
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal murf message", "error", err)
		return
	}
	if parsedMsg.Error != "" {
		logger.Error("murf reported an error", "error", parsedMsg.Error)
		options.ErrorCallback(parsedMsg.Error)
		return
	}

	contextID := parsedMsg.ContextID
	if contextID == "" {
		contextID, _ = c.lastContextID.Load().(string)
	}

	if parsedMsg.Audio != "" {
		payload, err := base64.StdEncoding.DecodeString(parsedMsg.Audio)
		if err != nil {
			logger.Warn("failed to decode murf audio", "error", err)
		} else if len(payload) > 0 {
			options.AudioChunkCallback(texttospeech.AudioChunk{Payload: payload, ContextID: contextID})
		}
	}

	if parsedMsg.Final {
		_, span := tracer.Start(ctx, "murf turn complete")
		span.SetAttributes(attribute.String("murf.context_id", contextID))
		if err := c.Clear(ctx, contextID); err != nil {
			span.RecordError(err)
			logger.Warn("failed to clear murf context", "context_id", contextID, "error", err)
		}
		span.End()
		options.TurnCompleteCallback(contextID)
	}
}

// Close closes the connection. Repeated calls are ignored.
func (c *TextToSpeechClient) Close() error {
	if !c.closeStarted.CompareAndSwap(false, true) {
		return nil
	}
	close(c.done)

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return nil
	}

	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err := c.conn.Close(); err != nil {
		return fmt.Errorf("failed to close websocket: %w", err)
	}
	return nil
}

func (c *TextToSpeechClient) send(msg any) error {
	if c.closeStarted.Load() {
		return texttospeech.ErrClosed
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return texttospeech.ErrNotConnected
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to murf websocket: %w", err)
	}
	return nil
}

func (c *TextToSpeechClient) readMessages(conn *websocket.Conn) {
	defer close(c.incoming)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closeStarted.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("murf websocket read failed", "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		select {
		case c.incoming <- msg:
		case <-c.done:
			return
		}
	}
}
