package deepgram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
	"github.com/koscakluka/ema-live/core/audio"
	"github.com/koscakluka/ema-live/core/speechtotext"
	"github.com/koscakluka/ema-live/internal/utils"
)

const typeErrorResponse = "Error"

func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	if s.closeStarted.Load() {
		return speechtotext.ErrClosed
	}
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("transcription already started")
	}

	options := speechtotext.NewTranscriptionOptions(opts...)
	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	conn, err := s.connectWebsocket(ctx, *encoding)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.lastMsgTs = time.Now()
	s.connMu.Unlock()

	silenceCtx, silenceCancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelSilence = silenceCancel
	go s.generateSilence(silenceCtx, options.EncodingInfo)
	go s.readAndProcessMessages(conn, options)

	return nil
}

func (s *TranscriptionClient) connectWebsocket(ctx context.Context, encoding encodingInfo) (*websocket.Conn, error) {
	if s.apiKey == "" {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, err := url.Parse(s.url)
	if err != nil {
		return nil, fmt.Errorf("invalid listen url: %w", err)
	}
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", encoding.Format.Name())
	queryParams.Set("sample_rate", strconv.Itoa(encoding.SampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	queryParams.Set("interim_results", "true")
	queryParams.Set("utterance_end_ms", "1000")
	queryParams.Set("endpointing", "300")
	queryParams.Set("vad_events", "true")
	listenUrl.RawQuery = queryParams.Encode()

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, listenUrl.String(),
		http.Header{"Authorization": {"Token " + s.apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) SendAudio(audio []byte) error {
	if s.closeStarted.Load() {
		return speechtotext.ErrClosed
	}
	if s.terminated.Load() {
		return nil
	}

	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil {
		return nil
	}

	s.lastMsgTs = time.Now()
	if err := s.conn.WriteMessage(websocket.BinaryMessage, audio); err != nil {
		return fmt.Errorf("failed to write to deepgram client: %w", err)
	}
	return nil
}

// Close asks Deepgram to flush and close the stream. Closing a client that
// never connected is a no-op, as is every call after the first.
func (s *TranscriptionClient) Close(ctx context.Context) error {
	if !s.closeStarted.CompareAndSwap(false, true) {
		return nil
	}
	s.cancelSilence()

	s.connMu.Lock()
	conn := s.conn
	var writeErr error
	closeSent := false
	if conn != nil && !s.terminated.Load() {
		if err := conn.WriteJSON(struct {
			Type string `json:"type"`
		}{Type: string(api.TypeCloseStreamResponse)}); err != nil {
			writeErr = fmt.Errorf("failed to send close stream message: %w", err)
		} else {
			closeSent = true
		}
	}
	s.connMu.Unlock()

	if conn == nil {
		return nil
	}

	if closeSent {
		select {
		case <-s.readerDone:
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
		}
	}

	if err := conn.Close(); err != nil && writeErr == nil {
		logger.Debug("deepgram websocket close", "error", err)
	}
	return writeErr
}

func (s *TranscriptionClient) readAndProcessMessages(conn *websocket.Conn, options speechtotext.TranscriptionOptions) {
	defer close(s.readerDone)
	defer s.cancelSilence()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if !s.closeStarted.Load() && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure) {
				logger.Error("failed to read deepgram websocket message", "error", err)
				var closeErr *websocket.CloseError
				if errors.As(err, &closeErr) {
					options.ErrorCallback(closeErr.Text)
				}
			}
			if s.terminated.CompareAndSwap(false, true) {
				options.TerminationCallback(0)
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, options)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, options speechtotext.TranscriptionOptions) {
	var parsedMsg struct {
		Type        string  `json:"type"`
		Description string  `json:"description"`
		Duration    float64 `json:"duration"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("failed to unmarshal deepgram message", "error", err)
		return
	}

	switch parsedMsg.Type {
	case string(api.TypeMessageResponse):
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("failed to unmarshal deepgram message", "error", err)
			return
		}
		transcript := ""
		if len(msgResp.Channel.Alternatives) > 0 {
			transcript = strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)
		}

		if msgResp.IsFinal {
			if len(transcript) > 0 {
				s.accumulatedTranscript = strings.TrimSpace(s.accumulatedTranscript + " " + transcript)
				s.unendedSegment = true
				options.PartialTranscriptCallback(s.accumulatedTranscript)
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded(options)
			}
		} else if len(transcript) > 0 {
			options.PartialTranscriptCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
		}

	case string(api.TypeUtteranceEndResponse):
		if s.unendedSegment {
			s.onSpeechEnded(options)
		}

	case string(api.TypeSpeechStartedResponse):
		s.unendedSegment = true

	case "Metadata":
		if parsedMsg.Duration > 0 && s.closeStarted.Load() && s.terminated.CompareAndSwap(false, true) {
			options.TerminationCallback(parsedMsg.Duration)
		}

	case typeErrorResponse:
		options.ErrorCallback(parsedMsg.Description)
	}
}

func (s *TranscriptionClient) onSpeechEnded(options speechtotext.TranscriptionOptions) {
	s.unendedSegment = false
	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		options.FinalTranscriptCallback(fullTranscript)
	}
}

func (s *TranscriptionClient) sinceLastMessage() time.Duration {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	return time.Since(s.lastMsgTs)
}

func (s *TranscriptionClient) write(messageType int, data []byte) error {
	s.connMu.Lock()
	defer s.connMu.Unlock()
	if s.conn == nil || s.terminated.Load() {
		return nil
	}
	return s.conn.WriteMessage(messageType, data)
}

// generateSilence keeps the stream alive while the client sends nothing:
// silence for the first second, then periodic KeepAlive messages.
func (s *TranscriptionClient) generateSilence(ctx context.Context, encoding audio.EncodingInfo) {
	type silenceGeneratorState string
	const (
		silenceGeneratorStateWaiting   silenceGeneratorState = "waiting"
		silenceGeneratorStateSilence   silenceGeneratorState = "silence"
		silenceGeneratorStateKeepAlive silenceGeneratorState = "keepAlive"
	)

	const durationMs = 50
	const milisecondsPerSecond = 1000
	ticker := time.NewTicker(durationMs * time.Millisecond)
	defer ticker.Stop()

	chunk := make([]byte, encoding.SampleRate*encoding.Format.ByteSize()*durationMs/milisecondsPerSecond)
	for i := range chunk {
		chunk[i] = encoding.SilenceValue()
	}
	keepAlive, _ := json.Marshal(struct {
		Type string `json:"type"`
	}{Type: "KeepAlive"})

	var state = silenceGeneratorStateWaiting
	var firstSilenceTime *time.Time
	var lastKeepAliveTime *time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			idle := s.sinceLastMessage()
			switch state {
			case silenceGeneratorStateWaiting:
				if idle > durationMs*time.Millisecond {
					state = silenceGeneratorStateSilence
					firstSilenceTime = utils.Ptr(time.Now())
				}

			case silenceGeneratorStateSilence:
				if idle < durationMs*time.Millisecond {
					state = silenceGeneratorStateWaiting
					firstSilenceTime = nil
					continue
				}
				if time.Since(*firstSilenceTime) >= time.Second {
					state = silenceGeneratorStateKeepAlive
					lastKeepAliveTime = utils.Ptr(time.Now())
					firstSilenceTime = nil
					continue
				}

				if err := s.write(websocket.BinaryMessage, chunk); err != nil {
					logger.Warn("sending silence audio failed", "error", err)
				}

			case silenceGeneratorStateKeepAlive:
				if idle < durationMs*time.Millisecond {
					state = silenceGeneratorStateWaiting
					continue
				}

				if time.Since(*lastKeepAliveTime) >= 5*time.Second {
					lastKeepAliveTime = utils.Ptr(time.Now())
					if err := s.write(websocket.TextMessage, keepAlive); err != nil {
						logger.Warn("sending keep alive failed", "error", err)
					}
				}
			}
		}
	}
}
