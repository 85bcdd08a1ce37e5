package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"

	"ChannelRelay/internal/config"
	"ChannelRelay/internal/ports"
)

func TestChatGPTGenerate(t *testing.T) {
	t.Parallel()

	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer sk-test" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"  translated text  "}}]}`)
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "gpt-4o-mini", Timeout: time.Second})
	out, err := client.Generate(context.Background(), ports.GenerateRequest{
		APIKey:      "sk-test",
		System:      "You translate.",
		Prompt:      "Translate this",
		Temperature: 0.3,
		MaxTokens:   200,
	})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if out != "translated text" {
		t.Fatalf("unexpected output %q", out)
	}
	if got.Model != "gpt-4o-mini" || got.Temperature != 0.3 || got.MaxTokens != 200 {
		t.Fatalf("unexpected payload %+v", got)
	}
	if len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.Messages[1].Content != "Translate this" {
		t.Fatalf("unexpected messages %+v", got.Messages)
	}
}

func TestChatGPTStatusError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m"})
	_, err := client.Generate(context.Background(), ports.GenerateRequest{APIKey: "k", Prompt: "p"})

	var statusErr *ports.StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if statusErr.StatusCode != http.StatusTooManyRequests || !statusErr.RotatesCredential() {
		t.Fatalf("unexpected status error %+v", statusErr)
	}
}

func TestChatGPTRequiresKey(t *testing.T) {
	t.Parallel()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: "http://127.0.0.1:1", Model: "m"})
	if _, err := client.Generate(context.Background(), ports.GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatalf("expected error without key")
	}
}

func TestChatGPTEmptyChoices(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"choices":[]}`)
	}))
	defer srv.Close()

	client := NewChatGPTClient(config.ChatGPTConfig{Endpoint: srv.URL, Model: "m"})
	if _, err := client.Generate(context.Background(), ports.GenerateRequest{APIKey: "k", Prompt: "p"}); err == nil {
		t.Fatalf("expected error for empty choices")
	}
}

func TestGeminiErrorMapping(t *testing.T) {
	t.Parallel()

	err := geminiError(fmt.Errorf("wrapped: %w", &googleapi.Error{Code: 403, Message: "API key not valid"}))
	var statusErr *ports.StatusError
	if !errors.As(err, &statusErr) || statusErr.StatusCode != 403 || statusErr.Service != "gemini" {
		t.Fatalf("expected gemini 403 status error, got %v", err)
	}

	plain := geminiError(errors.New("dial tcp: timeout"))
	if errors.As(plain, &statusErr) {
		t.Fatalf("transport error must not become a status error: %v", plain)
	}
}

func TestGeminiResponseText(t *testing.T) {
	t.Parallel()

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{
		{Content: &genai.Content{Parts: []genai.Part{}}},
		{Content: &genai.Content{Parts: []genai.Part{genai.Text("Hello "), genai.Text("world ")}}},
	}}
	if got := responseText(resp); got != "Hello world" {
		t.Fatalf("unexpected text %q", got)
	}
	if got := responseText(nil); got != "" {
		t.Fatalf("expected empty text, got %q", got)
	}
}
