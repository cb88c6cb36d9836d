package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func sseServer(t *testing.T, status int, events ...[2]string) (*httptest.Server, *requestBody) {
	t.Helper()

	received := &requestBody{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("expected bearer auth header, got %q", got)
		}
		_ = json.NewDecoder(r.Body).Decode(received)

		w.WriteHeader(status)
		for _, event := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event[0], event[1])
		}
	}))
	t.Cleanup(server.Close)
	return server, received
}

func TestGenerateStreamsTextDeltas(t *testing.T) {
	server, received := sseServer(t, http.StatusOK,
		[2]string{"response.created", `{}`},
		[2]string{"response.output_text.delta", `{"delta":"Hel"}`},
		[2]string{"response.output_text.delta", `{"delta":"lo"}`},
		[2]string{"response.completed", `{"response":{"usage":{"input_tokens":3,"output_tokens":2}}}`},
	)

	client, err := NewClient("test-key", WithURL(server.URL), WithModel("gpt-test"), WithInstructions("Be brief."))
	if err != nil {
		t.Fatalf("expected client, got %v", err)
	}

	var got []string
	for chunk := range client.Generate(context.Background(), "User: hi\nAssistant:") {
		got = append(got, chunk.Content)
	}

	if strings.Join(got, "|") != "Hel|lo" {
		t.Fatalf("expected [Hel lo], got %v", got)
	}
	if received.Model != "gpt-test" || !received.Stream || received.Input != "User: hi\nAssistant:" {
		t.Fatalf("unexpected request body %+v", received)
	}
	if received.Instructions == nil || *received.Instructions != "Be brief." {
		t.Fatalf("expected instructions to be sent, got %v", received.Instructions)
	}
}

func TestGenerateFoldsHTTPErrorIntoChunk(t *testing.T) {
	server, _ := sseServer(t, http.StatusTooManyRequests)
	client, _ := NewClient("test-key", WithURL(server.URL))

	var got []string
	for chunk := range client.Generate(context.Background(), "p") {
		got = append(got, chunk.Content)
	}

	if len(got) != 1 || !strings.HasPrefix(got[0], "Error generating response: non-OK HTTP status") {
		t.Fatalf("expected a single folded error chunk, got %v", got)
	}
}

func TestGenerateFoldsFailedResponse(t *testing.T) {
	server, _ := sseServer(t, http.StatusOK,
		[2]string{"response.output_text.delta", `{"delta":"a"}`},
		[2]string{"response.failed", `{"response":{"error":{"message":"overloaded"}}}`},
	)
	client, _ := NewClient("test-key", WithURL(server.URL))

	var got []string
	for chunk := range client.Generate(context.Background(), "p") {
		got = append(got, chunk.Content)
	}

	if len(got) != 2 || got[1] != "Error generating response: response failed: overloaded" {
		t.Fatalf("unexpected chunks %v", got)
	}
}

func TestPromptCollectsWholeReply(t *testing.T) {
	server, _ := sseServer(t, http.StatusOK,
		[2]string{"response.output_text.delta", `{"delta":"one "}`},
		[2]string{"response.output_text.delta", `{"delta":"two"}`},
		[2]string{"response.completed", `{}`},
	)
	client, _ := NewClient("test-key", WithURL(server.URL))

	reply, err := client.Prompt(context.Background(), "p")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if reply != "one two" {
		t.Fatalf("expected %q, got %q", "one two", reply)
	}
}

func TestNewClientRequiresAPIKey(t *testing.T) {
	if _, err := NewClient(""); err == nil {
		t.Fatalf("expected error for empty api key")
	}
}
