package assemblyai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/speechtotext"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Transcribe opens the streaming connection and starts reading engine events.
// Callbacks from opts run on the reader goroutine in emission order.
func (c *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	if c.closeStarted.Load() {
		return speechtotext.ErrClosed
	}
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("transcription already started")
	}

	options := speechtotext.NewTranscriptionOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}
	c.encoding = options.EncodingInfo

	if c.apiKey == "" {
		return fmt.Errorf("assemblyai api key not found")
	}

	streamURL, err := url.Parse(c.url)
	if err != nil {
		return fmt.Errorf("invalid streaming url: %w", err)
	}
	queryParams := streamURL.Query()
	queryParams.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	queryParams.Set("encoding", encoding)
	queryParams.Set("format_turns", "false")
	streamURL.RawQuery = queryParams.Encode()

	conn, _, err := c.dialer.DialContext(ctx, streamURL.String(), http.Header{"Authorization": {c.apiKey}})
	if err != nil {
		return fmt.Errorf("failed to open socket connection to assemblyai: %w", err)
	}

	c.connMu.Lock()
	c.conn = conn
	c.connMu.Unlock()

	_, span := tracer.Start(context.WithoutCancel(ctx), "assemblyai transcription")
	go c.readAndProcessMessages(span, conn, options)

	return nil
}

// SendAudio forwards one frame of audio. Frames sent after the engine has
// terminated the stream are dropped.
func (c *TranscriptionClient) SendAudio(audio []byte) error {
	if c.closeStarted.Load() {
		return speechtotext.ErrClosed
	}
	if c.terminated.Load() {
		return nil
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return nil
	}

	if err := c.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to assemblyai client: %w", err)
	}
	c.sentBytes.Add(int64(len(audio)))
	return nil
}

// Close asks the engine to terminate the stream, waits for it to do so, and
// releases the connection. Closing a client that never connected is a no-op,
// as is every call after the first.
func (c *TranscriptionClient) Close(ctx context.Context) error {
	if !c.closeStarted.CompareAndSwap(false, true) {
		return nil
	}

	c.connMu.Lock()
	conn := c.conn
	var writeErr error
	terminateSent := false
	if conn != nil && !c.terminated.Load() {
		if err := conn.WriteJSON(terminateMessage{Type: messageTypeTerminate}); err != nil {
			writeErr = fmt.Errorf("failed to send terminate message: %w", err)
		} else {
			terminateSent = true
		}
	}
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}

	if terminateSent {
		timer := time.NewTimer(c.terminateTimeout)
		select {
		case <-c.readerDone:
		case <-timer.C:
			logger.Warn("assemblyai did not confirm termination in time", "timeout", c.terminateTimeout)
		case <-ctx.Done():
		}
		timer.Stop()
	}

	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return errors.Join(writeErr, fmt.Errorf("failed to close websocket: %w", err))
	}
	return writeErr
}

func (c *TranscriptionClient) readAndProcessMessages(span trace.Span, conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	defer close(c.readerDone)
	defer span.End()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !c.closeStarted.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("failed to read assemblyai websocket message", "error", err)
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					options.ErrorCallback(closeErr.Text)
				}
			}
			c.terminate(span, options, 0)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		c.processMessage(span, msg, options)
	}
}

func (c *TranscriptionClient) processMessage(span trace.Span, msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg message
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal assemblyai message", "error", err)
		return
	}

	if parsedMsg.Error != "" {
		span.AddEvent("engine error", trace.WithAttributes(attribute.String("error", parsedMsg.Error)))
		options.ErrorCallback(parsedMsg.Error)
		return
	}

	switch parsedMsg.Type {
	case messageTypeBegin:
		logger.Debug("assemblyai session started", "id", parsedMsg.ID, "expires_at", parsedMsg.ExpiresAt)
		span.SetAttributes(attribute.String("assemblyai.session_id", parsedMsg.ID))
		options.SessionBeginCallback(parsedMsg.ID)

	case messageTypeTurn:
		transcript := strings.TrimSpace(parsedMsg.Transcript)
		if transcript == "" {
			return
		}
		if parsedMsg.EndOfTurn {
			options.FinalTranscriptCallback(transcript)
		} else {
			options.PartialTranscriptCallback(transcript)
		}

	case messageTypeTermination:
		c.terminate(span, options, parsedMsg.AudioDurationSeconds)

	default:
		logger.Debug("ignoring assemblyai message", "type", parsedMsg.Type)
	}
}

func (c *TranscriptionClient) terminate(span trace.Span, options speechtotext.TranscriptionOptions, audioDurationSeconds float64) {
	if !c.terminated.CompareAndSwap(false, true) {
		return
	}

	span.SetAttributes(
		attribute.Float64("audio.processed_seconds", audioDurationSeconds),
		attribute.Float64("audio.sent_seconds", c.encoding.Duration(int(c.sentBytes.Load())).Seconds()),
	)
	options.TerminationCallback(audioDurationSeconds)
}
