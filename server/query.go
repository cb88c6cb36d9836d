package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-live/core/conversations"
)

const maxQueryBodyBytes = 1 << 20

type queryRequest struct {
	Prompt string `json:"prompt"`
}

type queryResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	if s.deps.Prompter == nil {
		writeJSONError(w, http.StatusNotImplemented, "query endpoint is not configured")
		return
	}

	var req queryRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes)).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "request body must be a JSON object with a prompt")
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSONError(w, http.StatusBadRequest, "prompt is required")
		return
	}

	response, err := s.deps.Prompter.Prompt(r.Context(), req.Prompt)
	if err != nil {
		s.logger.Error("query failed", "error", err)
		writeJSONError(w, http.StatusBadGateway, "failed to generate response")
		return
	}
	writeJSON(w, http.StatusOK, queryResponse{Response: response})
}

type historyResponse struct {
	SessionID string                  `json:"session_id"`
	Messages  []conversations.Message `json:"messages"`
}

func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("id")
	messages, err := s.deps.History.History(r.Context(), sessionID)
	if err != nil {
		s.writeHistoryError(w, err)
		return
	}
	if messages == nil {
		messages = []conversations.Message{}
	}
	writeJSON(w, http.StatusOK, historyResponse{SessionID: sessionID, Messages: messages})
}

func (s *Server) handleClearHistory(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.History.Clear(r.Context(), r.PathValue("id")); err != nil {
		s.writeHistoryError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, conversations.ErrEmptySessionID) {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("history request failed", "error", err)
	writeJSONError(w, http.StatusInternalServerError, "history store unavailable")
}
