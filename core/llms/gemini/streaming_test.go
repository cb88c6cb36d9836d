package gemini

import (
	"context"
	"errors"
	"iter"
	"testing"

	"github.com/koscakluka/ema-live/core/llms"
	"google.golang.org/genai"
)

type stubModels struct {
	streamed []*genai.GenerateContentResponse
	streamErr error
	reply     *genai.GenerateContentResponse
	replyErr  error

	lastModel  string
	lastPrompt string
}

func (s *stubModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	s.record(model, contents)
	return s.reply, s.replyErr
}

func (s *stubModels) GenerateContentStream(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) iter.Seq2[*genai.GenerateContentResponse, error] {
	s.record(model, contents)
	return func(yield func(*genai.GenerateContentResponse, error) bool) {
		for _, resp := range s.streamed {
			if !yield(resp, nil) {
				return
			}
		}
		if s.streamErr != nil {
			yield(nil, s.streamErr)
		}
	}
}

func (s *stubModels) record(model string, contents []*genai.Content) {
	s.lastModel = model
	if len(contents) > 0 && len(contents[0].Parts) > 0 {
		s.lastPrompt = contents[0].Parts[0].Text
	}
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Role: genai.RoleModel, Parts: []*genai.Part{{Text: text}}},
		}},
	}
}

func collectChunks(chunks iter.Seq[llms.TextChunk]) []string {
	var out []string
	for chunk := range chunks {
		out = append(out, chunk.Content)
	}
	return out
}

func TestGenerateYieldsChunksInOrderAndSkipsEmpty(t *testing.T) {
	models := &stubModels{streamed: []*genai.GenerateContentResponse{
		textResponse("Hel"), textResponse(""), nil, textResponse("lo"),
	}}
	client := newClient(models)

	got := collectChunks(client.Generate(context.Background(), "User: hi\nAssistant:"))

	if len(got) != 2 || got[0] != "Hel" || got[1] != "lo" {
		t.Fatalf("expected [Hel lo], got %v", got)
	}
	if models.lastModel != DefaultModel {
		t.Fatalf("expected default model %q, got %q", DefaultModel, models.lastModel)
	}
	if models.lastPrompt != "User: hi\nAssistant:" {
		t.Fatalf("expected prompt to be forwarded, got %q", models.lastPrompt)
	}
}

func TestGenerateFoldsStreamErrorIntoFinalChunk(t *testing.T) {
	models := &stubModels{
		streamed:  []*genai.GenerateContentResponse{textResponse("partial")},
		streamErr: errors.New("quota exceeded"),
	}
	client := newClient(models, WithModel("gemini-test"))

	got := collectChunks(client.Generate(context.Background(), "p"))

	if len(got) != 2 {
		t.Fatalf("expected 2 chunks, got %v", got)
	}
	if got[1] != "Error generating response: quota exceeded" {
		t.Fatalf("unexpected error chunk %q", got[1])
	}
	if models.lastModel != "gemini-test" {
		t.Fatalf("expected configured model, got %q", models.lastModel)
	}
}

func TestGenerateStopsWhenConsumerStops(t *testing.T) {
	models := &stubModels{streamed: []*genai.GenerateContentResponse{
		textResponse("a"), textResponse("b"), textResponse("c"),
	}}
	client := newClient(models)

	var got []string
	for chunk := range client.Generate(context.Background(), "p") {
		got = append(got, chunk.Content)
		break
	}

	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected to stop after first chunk, got %v", got)
	}
}

func TestPrompt(t *testing.T) {
	client := newClient(&stubModels{reply: textResponse("whole reply")})

	reply, err := client.Prompt(context.Background(), "p")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply != "whole reply" {
		t.Fatalf("expected %q, got %q", "whole reply", reply)
	}

	failing := newClient(&stubModels{replyErr: errors.New("boom")})
	if _, err := failing.Prompt(context.Background(), "p"); err == nil {
		t.Fatalf("expected error")
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(context.Background(), ""); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}
