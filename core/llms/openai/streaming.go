package openai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/koscakluka/ema-live/core/llms"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	eventPrefix = "event:"
	chunkPrefix = "data:"
)

type requestBody struct {
	Model        string  `json:"model"`
	Instructions *string `json:"instructions,omitempty"`
	Input        string  `json:"input"`
	Stream       bool    `json:"stream"`
}

// Generate streams the reply to prompt through the Responses API. A failure at
// any point ends the sequence with an [llms.ErrorChunk].
func (c *Client) Generate(ctx context.Context, prompt string) iter.Seq[llms.TextChunk] {
	return func(yield func(llms.TextChunk) bool) {
		ctx, span := tracer.Start(ctx, "prompt llm stream")
		defer span.End()
		span.SetAttributes(attribute.String("request.model", c.model))

		fail := func(err error) {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("openai stream failed", "error", err)
			yield(llms.ErrorChunk(err))
		}

		for delta, err := range c.deltas(ctx, span, prompt) {
			if err != nil {
				fail(err)
				return
			}
			if delta == "" {
				continue
			}
			if !yield(llms.TextChunk{Content: delta}) {
				return
			}
		}
	}
}

// Prompt returns the whole reply to prompt.
func (c *Client) Prompt(ctx context.Context, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "prompt llm")
	defer span.End()

	var b strings.Builder
	for delta, err := range c.deltas(ctx, span, prompt) {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return "", err
		}
		b.WriteString(delta)
	}
	return b.String(), nil
}

func (c *Client) deltas(ctx context.Context, span trace.Span, prompt string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		reqBody := requestBody{Model: c.model, Input: prompt, Stream: true}
		if c.instructions != "" {
			reqBody.Instructions = &c.instructions
		}

		requestBodyBytes, err := json.Marshal(reqBody)
		if err != nil {
			yield("", fmt.Errorf("error marshalling JSON: %w", err))
			return
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewBuffer(requestBodyBytes))
		if err != nil {
			yield("", fmt.Errorf("error creating HTTP request: %w", err))
			return
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		requestStarted := time.Now()
		span.AddEvent("request started")
		resp, err := c.httpClient.Do(req)
		if err != nil {
			yield("", fmt.Errorf("error sending request: %w", err))
			return
		}
		defer resp.Body.Close()

		span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
		if resp.StatusCode != http.StatusOK {
			if errorBody, err := io.ReadAll(resp.Body); err == nil {
				span.SetAttributes(attribute.String("response.error", string(errorBody)))
			}
			yield("", fmt.Errorf("non-OK HTTP status: %s", resp.Status))
			return
		}

		firstToken := true
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if !strings.HasPrefix(line, eventPrefix) {
				continue
			}
			event := strings.TrimSpace(strings.TrimPrefix(line, eventPrefix))

			if !scanner.Scan() {
				break
			}
			chunk := strings.TrimSpace(strings.TrimPrefix(scanner.Text(), chunkPrefix))

			switch streamingEventType(event) {
			case streamingEventResponseOutputTextDelta:
				var responseBody streamingBodyResponseTextDelta
				if err := json.Unmarshal([]byte(chunk), &responseBody); err != nil {
					logger.Warn("skipping malformed openai delta", "error", err)
					continue
				}
				if firstToken {
					firstToken = false
					span.SetAttributes(attribute.Float64("response.request_to_first_token_time", time.Since(requestStarted).Seconds()))
					span.AddEvent("received first chunk")
				}
				if !yield(responseBody.Delta, nil) {
					return
				}

			case streamingEventResponseFailed, streamingEventError:
				var responseBody streamingBodyError
				_ = json.Unmarshal([]byte(chunk), &responseBody)
				yield("", fmt.Errorf("response failed: %s", responseBody.message()))
				return

			case streamingEventResponseCompleted:
				var responseBody streamingBodyResponseCompleted
				if err := json.Unmarshal([]byte(chunk), &responseBody); err == nil && responseBody.Response.Usage != nil {
					span.SetAttributes(
						attribute.Int("response.usage.input_tokens", responseBody.Response.Usage.InputTokens),
						attribute.Int("response.usage.output_tokens", responseBody.Response.Usage.OutputTokens),
					)
				}
				return
			}
		}

		if err := scanner.Err(); err != nil {
			yield("", fmt.Errorf("error reading streamed response: %w", err))
		}
	}
}

type streamingEventType string

const (
	streamingEventResponseOutputTextDelta streamingEventType = "response.output_text.delta"
	streamingEventResponseCompleted       streamingEventType = "response.completed"
	streamingEventResponseFailed          streamingEventType = "response.failed"
	streamingEventError                   streamingEventType = "error"
)

type streamingBodyResponseTextDelta struct {
	Delta string `json:"delta"`
}

type streamingBodyError struct {
	Message  string `json:"message"`
	Response struct {
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
}

func (b streamingBodyError) message() string {
	if b.Response.Error != nil && b.Response.Error.Message != "" {
		return b.Response.Error.Message
	}
	if b.Message != "" {
		return b.Message
	}
	return "unknown error"
}

// streamingBodyResponseCompleted is emitted when the model response is complete
type streamingBodyResponseCompleted struct {
	Response struct {
		Usage *struct {
			InputTokens  int `json:"input_tokens"`
			OutputTokens int `json:"output_tokens"`
		} `json:"usage"`
	} `json:"response"`
}
