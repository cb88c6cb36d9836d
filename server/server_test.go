package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"iter"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/conversations"
	"github.com/koscakluka/ema-live/core/llms"
	"github.com/koscakluka/ema-live/core/speechtotext"
	"github.com/koscakluka/ema-live/core/texttospeech"
	"github.com/koscakluka/ema-live/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

type stubSpeechToText struct {
	mu      sync.Mutex
	options *speechtotext.TranscriptionOptions
}

func (s *stubSpeechToText) Transcribe(_ context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := speechtotext.NewTranscriptionOptions(opts...)
	s.mu.Lock()
	s.options = &options
	s.mu.Unlock()
	return nil
}

func (s *stubSpeechToText) SendAudio([]byte) error      { return nil }
func (s *stubSpeechToText) Close(context.Context) error { return nil }

func (s *stubSpeechToText) started() *speechtotext.TranscriptionOptions {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options
}

type stubTextToSpeech struct {
	mu      sync.Mutex
	options *texttospeech.ReceiveOptions
}

func (s *stubTextToSpeech) Connect(context.Context) error { return nil }

func (s *stubTextToSpeech) SendVoiceConfig(context.Context, string, string) error { return nil }

func (s *stubTextToSpeech) SendText(_ context.Context, _ string, contextID string, end bool) error {
	if !end {
		return nil
	}
	s.mu.Lock()
	options := s.options
	s.mu.Unlock()
	if options != nil {
		options.AudioChunkCallback(texttospeech.AudioChunk{Payload: []byte("pcm1"), ContextID: contextID})
		options.AudioChunkCallback(texttospeech.AudioChunk{Payload: []byte("pcm2"), ContextID: contextID})
		options.TurnCompleteCallback(contextID)
	}
	return nil
}

func (s *stubTextToSpeech) ReceiveLoop(ctx context.Context, opts ...texttospeech.ReceiveOption) error {
	options := texttospeech.NewReceiveOptions(opts...)
	s.mu.Lock()
	s.options = &options
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

func (s *stubTextToSpeech) Close() error { return nil }

func (s *stubTextToSpeech) receiving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.options != nil
}

type stubEngine struct {
	reply     string
	chunks    []string
	promptErr error
}

func (e stubEngine) Generate(context.Context, string) iter.Seq[llms.TextChunk] {
	return func(yield func(llms.TextChunk) bool) {
		chunks := e.chunks
		if chunks == nil {
			chunks = []string{e.reply}
		}
		for _, chunk := range chunks {
			if !yield(llms.TextChunk{Content: chunk}) {
				return
			}
		}
	}
}

func (e stubEngine) Prompt(context.Context, string) (string, error) {
	return e.reply, e.promptErr
}

type testServer struct {
	server  *Server
	http    *httptest.Server
	stt     *stubSpeechToText
	tts     *stubTextToSpeech
	history *conversations.MemoryStore
}

func newTestServer(t *testing.T, engine stubEngine) *testServer {
	t.Helper()

	registry := prometheus.NewRegistry()
	ts := &testServer{
		stt:     &stubSpeechToText{},
		tts:     &stubTextToSpeech{},
		history: conversations.NewMemoryStore(),
	}
	s, err := New(Dependencies{
		NewSpeechToText: func() (orchestration.SpeechToText, error) { return ts.stt, nil },
		NewTextToSpeech: func() (orchestration.TextToSpeech, error) { return ts.tts, nil },
		Generator:       engine,
		Prompter:        engine,
		History:         ts.history,
		Metrics:         metrics.NewCollector(registry),
		Gatherer:        registry,
		SessionOptions:  []orchestration.OrchestratorOption{orchestration.WithShortReplyDelay(0)},
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("expected server, got %v", err)
	}
	ts.server = s
	ts.http = httptest.NewServer(s.Handler())
	t.Cleanup(ts.http.Close)
	return ts
}

func (ts *testServer) dial(t *testing.T, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws?session_id=" + sessionID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("expected websocket dial to succeed, got %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

type liveMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text"`
	AudioData string `json:"audio_data"`
	Message   string `json:"message"`
}

func readLiveMessage(t *testing.T, conn *websocket.Conn) liveMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg liveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("expected message, got %v", err)
	}
	return msg
}

func TestLiveSessionEndToEnd(t *testing.T) {
	ts := newTestServer(t, stubEngine{chunks: []string{"Hi", " there", "!"}})
	conn := ts.dial(t, "live-1")

	waitForCondition(t, time.Second, "session start", func() bool {
		return ts.stt.started() != nil && ts.tts.receiving()
	})
	options := ts.stt.started()
	options.PartialTranscriptCallback("hel")
	options.PartialTranscriptCallback("hello")
	options.FinalTranscriptCallback("hello there")

	want := []liveMessage{
		{Type: "partial_transcript", Text: "hel"},
		{Type: "partial_transcript", Text: "hello"},
		{Type: "final_transcript", Text: "hello there"},
		{Type: "audio_chunk", AudioData: "cGNtMQ=="},
		{Type: "audio_chunk", AudioData: "cGNtMg=="},
		{Type: "speech_complete"},
	}
	for i, expected := range want {
		if got := readLiveMessage(t, conn); got != expected {
			t.Fatalf("expected message %d to be %+v, got %+v", i, expected, got)
		}
	}

	waitForCondition(t, time.Second, "assistant reply recorded", func() bool {
		history, _ := ts.history.History(context.Background(), "live-1")
		return len(history) == 2
	})
	history, _ := ts.history.History(context.Background(), "live-1")
	if history[0].Content != "hello there" || history[1].Content != "Hi there!" {
		t.Fatalf("expected user and assistant turns, got %+v", history)
	}

	resp, err := http.Get(ts.http.URL + "/healthz")
	if err != nil {
		t.Fatalf("expected healthz to respond, got %v", err)
	}
	defer resp.Body.Close()
	var health healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		t.Fatalf("expected health JSON, got %v", err)
	}
	if health.Status != "ok" || health.LiveSessions != 1 {
		t.Fatalf("expected ok with 1 live session, got %+v", health)
	}

	_ = conn.Close()
	waitForCondition(t, 2*time.Second, "session unregistered", func() bool {
		return ts.server.Sessions().Count() == 0
	})
}

func TestLiveSessionRejectsDuplicateSessionID(t *testing.T) {
	ts := newTestServer(t, stubEngine{})
	ts.dial(t, "dup")
	waitForCondition(t, time.Second, "first session registered", func() bool {
		return ts.server.Sessions().Count() == 1
	})

	url := "ws" + strings.TrimPrefix(ts.http.URL, "http") + "/ws?session_id=dup"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatalf("expected duplicate session to be rejected")
	}
	if resp == nil || resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %+v", resp)
	}
}

func TestLiveSessionReportsBridgeCreationFailure(t *testing.T) {
	ts := newTestServer(t, stubEngine{})
	ts.server.deps.NewTextToSpeech = func() (orchestration.TextToSpeech, error) {
		return nil, errors.New("no voice")
	}

	conn := ts.dial(t, "broken")
	msg := readLiveMessage(t, conn)
	if msg.Type != "error" || !strings.Contains(msg.Message, "no voice") {
		t.Fatalf("expected setup error message, got %+v", msg)
	}
}

func TestQueryEndpoint(t *testing.T) {
	ts := newTestServer(t, stubEngine{reply: "42"})

	resp, err := http.Post(ts.http.URL+"/v1/query", "application/json", strings.NewReader(`{"prompt":"meaning of life?"}`))
	if err != nil {
		t.Fatalf("expected query to respond, got %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body queryResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("expected query JSON, got %v", err)
	}
	if body.Response != "42" {
		t.Fatalf("expected response 42, got %q", body.Response)
	}
}

func TestQueryEndpointValidation(t *testing.T) {
	tests := []struct {
		name       string
		engine     stubEngine
		body       string
		wantStatus int
	}{
		{name: "malformed", body: `{`, wantStatus: http.StatusBadRequest},
		{name: "empty prompt", body: `{"prompt":"  "}`, wantStatus: http.StatusBadRequest},
		{name: "engine failure", engine: stubEngine{promptErr: errors.New("quota")}, body: `{"prompt":"hi"}`, wantStatus: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.engine)
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/v1/query", strings.NewReader(tt.body))
			ts.server.Handler().ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Fatalf("expected %d, got %d: %s", tt.wantStatus, rr.Code, rr.Body.String())
			}
			if ct := rr.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
				t.Fatalf("expected JSON error, got content-type %q", ct)
			}
		})
	}
}

func TestHistoryEndpoints(t *testing.T) {
	ts := newTestServer(t, stubEngine{})
	ctx := context.Background()
	_ = ts.history.Append(ctx, "s1", conversations.RoleUser, "hello")
	_ = ts.history.Append(ctx, "s1", conversations.RoleAssistant, "hi")

	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body historyResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("expected history JSON, got %v", err)
	}
	if body.SessionID != "s1" || len(body.Messages) != 2 || body.Messages[1].Content != "hi" {
		t.Fatalf("unexpected history %+v", body)
	}

	rr = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/v1/sessions/s1/history", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/sessions/s1/history", nil))
	if !strings.Contains(rr.Body.String(), `"messages":[]`) {
		t.Fatalf("expected cleared history, got %s", rr.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t, stubEngine{})

	rr := httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	rr = httptest.NewRecorder()
	ts.server.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `ema_live_http_requests_total{route="GET /healthz",status="2xx"} 1`) {
		t.Fatalf("expected healthz request to be counted, got %s", rr.Body.String())
	}
}

func TestNewRequiresBridges(t *testing.T) {
	if _, err := New(Dependencies{Generator: stubEngine{}}, nil); err == nil {
		t.Fatalf("expected missing bridge constructors to fail")
	}
}

func waitForCondition(t *testing.T, timeout time.Duration, name string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", name)
}
