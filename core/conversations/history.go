// Package conversations keeps the per-session chat history used to build
// prompts for the response generator.
package conversations

import (
	"context"
	"errors"
	"strings"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is a single role-tagged entry of a conversation.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Store maps session ids to their ordered conversation history. Insertion
// order is conversational order. Unknown session ids have an empty history.
type Store interface {
	Append(ctx context.Context, sessionID string, role Role, content string) error
	History(ctx context.Context, sessionID string) ([]Message, error)
	Clear(ctx context.Context, sessionID string) error
}

var (
	ErrEmptySessionID = errors.New("session id is empty")
	ErrInvalidRole    = errors.New("invalid message role")
	ErrInvalidConfig  = errors.New("invalid history store configuration")
)

// CompilePrompt renders the session history as a prompt for the generator.
func CompilePrompt(ctx context.Context, store Store, sessionID string) (string, error) {
	history, err := store.History(ctx, sessionID)
	if err != nil {
		return "", err
	}

	return FormatPrompt(history), nil
}

// FormatPrompt renders one line per message ("User: ..." or
// "Assistant: ...") followed by a trailing "Assistant:" cue.
func FormatPrompt(messages []Message) string {
	var b strings.Builder
	for _, message := range messages {
		switch message.Role {
		case RoleUser:
			b.WriteString("User: ")
		case RoleAssistant:
			b.WriteString("Assistant: ")
		default:
			continue
		}
		b.WriteString(message.Content)
		b.WriteString("\n")
	}
	b.WriteString("Assistant:")
	return b.String()
}

func validate(sessionID string, role Role) error {
	if sessionID == "" {
		return ErrEmptySessionID
	}
	if role != RoleUser && role != RoleAssistant {
		return ErrInvalidRole
	}
	return nil
}
