package server

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	orchestration "github.com/koscakluka/ema-live/core"
)

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger := s.logger.With("session_id", sessionID)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	unregister, ok := s.sessions.Register(sessionID, cancel)
	if !ok {
		writeJSONError(w, http.StatusConflict, "session is already live")
		return
	}
	defer unregister()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	orchestrator, err := s.newOrchestrator(sessionID)
	if err != nil {
		logger.Error("failed to create session", "error", err)
		_ = conn.WriteJSON(map[string]string{"type": "error", "message": err.Error()})
		_ = conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, "session setup failed"))
		return
	}

	if err := orchestrator.Run(ctx, conn); err != nil {
		logger.Error("session ended with error", "error", err)
		return
	}
}

func (s *Server) newOrchestrator(sessionID string) (*orchestration.Orchestrator, error) {
	stt, err := s.deps.NewSpeechToText()
	if err != nil {
		return nil, fmt.Errorf("failed to create speech-to-text client: %w", err)
	}
	tts, err := s.deps.NewTextToSpeech()
	if err != nil {
		return nil, fmt.Errorf("failed to create text-to-speech client: %w", err)
	}

	opts := []orchestration.OrchestratorOption{
		orchestration.WithSpeechToTextClient(stt),
		orchestration.WithTextToSpeechClient(tts),
		orchestration.WithResponseGenerator(s.deps.Generator),
		orchestration.WithHistory(s.deps.History),
		orchestration.WithLogger(s.logger),
	}
	if s.metrics != nil {
		opts = append(opts, orchestration.WithMetrics(s.metrics))
	}
	opts = append(opts, s.deps.SessionOptions...)

	return orchestration.NewOrchestrator(sessionID, opts...), nil
}
