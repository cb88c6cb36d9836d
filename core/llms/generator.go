// Package llms defines how live sessions obtain streamed replies from a
// language model.
package llms

import (
	"context"
	"fmt"
	"iter"
	"strings"
)

// TextChunk is one incremental piece of a generated reply.
type TextChunk struct {
	Content string
}

// Generator produces a reply for a prompt as a finite, one-shot sequence of
// chunks. Mid-stream failures are not surfaced as errors; the sequence ends
// with a single chunk built by [ErrorChunk] instead.
type Generator interface {
	Generate(ctx context.Context, prompt string) iter.Seq[TextChunk]
}

// Prompter produces a whole reply at once.
type Prompter interface {
	Prompt(ctx context.Context, prompt string) (string, error)
}

// ErrorChunk folds a generation failure into reply text.
func ErrorChunk(err error) TextChunk {
	return TextChunk{Content: fmt.Sprintf("Error generating response: %v", err)}
}

// Collect drains chunks into a single string.
func Collect(chunks iter.Seq[TextChunk]) string {
	var b strings.Builder
	for chunk := range chunks {
		b.WriteString(chunk.Content)
	}
	return b.String()
}
