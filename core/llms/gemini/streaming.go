package gemini

import (
	"context"
	"fmt"
	"iter"

	"github.com/koscakluka/ema-live/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

// Generate streams the reply to prompt. A failure at any point ends the
// sequence with an [llms.ErrorChunk].
func (c *Client) Generate(ctx context.Context, prompt string) iter.Seq[llms.TextChunk] {
	return func(yield func(llms.TextChunk) bool) {
		ctx, span := tracer.Start(ctx, "generate gemini stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", c.model))

		chunkCount := 0
		defer func() { span.SetAttributes(attribute.Int("response.chunk_count", chunkCount)) }()

		for resp, err := range c.models.GenerateContentStream(ctx, c.model, genai.Text(prompt), nil) {
			if err != nil {
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
				logger.Error("gemini stream failed", "error", err)
				yield(llms.ErrorChunk(err))
				return
			}
			if resp == nil {
				continue
			}

			text := resp.Text()
			if text == "" {
				continue
			}

			if chunkCount == 0 {
				span.AddEvent("received first chunk")
			}
			chunkCount++
			if !yield(llms.TextChunk{Content: text}) {
				return
			}
		}
	}
}

// Prompt returns the whole reply to prompt in one call.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt gemini")
	defer span.End()
	span.SetAttributes(attribute.String("request.model", c.model))

	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(prompt), nil)
	if err != nil {
		err = fmt.Errorf("failed to generate content: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if resp == nil {
		return "", nil
	}

	return resp.Text(), nil
}
