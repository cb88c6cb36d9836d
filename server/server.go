package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-live/core"
	"github.com/koscakluka/ema-live/core/conversations"
	"github.com/koscakluka/ema-live/core/llms"
	"github.com/koscakluka/ema-live/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Dependencies are the collaborators shared by every session. The bridge
// constructors are called once per session since bridges are never shared.
type Dependencies struct {
	NewSpeechToText func() (orchestration.SpeechToText, error)
	NewTextToSpeech func() (orchestration.TextToSpeech, error)
	Generator       llms.Generator
	Prompter        llms.Prompter
	History         conversations.Store

	// Metrics and Gatherer are optional. Without a Gatherer /metrics is not
	// served.
	Metrics  *metrics.Collector
	Gatherer prometheus.Gatherer

	// SessionOptions are applied to every orchestrator after the defaults.
	SessionOptions []orchestration.OrchestratorOption
}

type Server struct {
	deps     Dependencies
	logger   *slog.Logger
	mux      *http.ServeMux
	upgrader websocket.Upgrader
	sessions *Tracker
	metrics  *metrics.Collector
}

func New(deps Dependencies, logger *slog.Logger) (*Server, error) {
	if deps.NewSpeechToText == nil || deps.NewTextToSpeech == nil {
		return nil, errors.New("speech-to-text and text-to-speech constructors are required")
	}
	if deps.Generator == nil {
		return nil, errors.New("response generator is required")
	}
	if deps.History == nil {
		deps.History = conversations.NewMemoryStore()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		deps:   deps,
		logger: logger,
		mux:    http.NewServeMux(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		sessions: NewTracker(),
		metrics:  deps.Metrics,
	}

	s.routes()
	return s, nil
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /ws", s.handleLive)
	s.mux.HandleFunc("POST /v1/query", s.handleQuery)
	s.mux.HandleFunc("GET /v1/sessions/{id}/history", s.handleGetHistory)
	s.mux.HandleFunc("DELETE /v1/sessions/{id}/history", s.handleClearHistory)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.deps.Gatherer != nil {
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	}
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = recoverPanics(s.logger, h)
	h = s.accessLog(h)
	h = otelhttp.NewHandler(h, "ema-live",
		otelhttp.WithSpanNameFormatter(func(operationName string, request *http.Request) string {
			return operationName + " " + request.URL.Path
		}),
	)
	return h
}

// Sessions exposes the live session registry.
func (s *Server) Sessions() *Tracker {
	return s.sessions
}

// WaitSessions waits for live sessions to end on their own and cancels the
// ones still running once ctx is done. It reports whether all sessions ended
// before ctx.
func (s *Server) WaitSessions(ctx context.Context) bool {
	if s.sessions.Wait(ctx) {
		return true
	}
	canceled := s.sessions.CancelAll()
	s.logger.Warn("canceled live sessions after grace period", "sessions", canceled)
	return false
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", LiveSessions: s.sessions.Count()})
}

type healthResponse struct {
	Status       string `json:"status"`
	LiveSessions int    `json:"live_sessions"`
}
