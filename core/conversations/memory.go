package conversations

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps history for the lifetime of the process.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string][]Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string][]Message)}
}

func (s *MemoryStore) Append(_ context.Context, sessionID string, role Role, content string) error {
	if err := validate(sessionID, role); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions == nil {
		s.sessions = make(map[string][]Message)
	}
	s.sessions[sessionID] = append(s.sessions[sessionID], Message{Role: role, Content: content})
	return nil
}

// History returns a copy of the session history; callers may modify it.
func (s *MemoryStore) History(_ context.Context, sessionID string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.sessions[sessionID]), nil
}

func (s *MemoryStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, sessionID)
	return nil
}
