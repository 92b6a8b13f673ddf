package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/koscakluka/ema-phone/core/llms"
)

func TestGenerateSendsHistoryAndReturnsFirstChoice(t *testing.T) {
	var received chatRequestBody
	var authorization string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authorization = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hi there"}},{"message":{"content":"ignored"}}]}`))
	}))
	defer server.Close()

	client := NewChatClient("test-key", WithChatURL(server.URL), WithChatModel("test-model"), WithChatHTTPClient(server.Client()))

	reply, err := client.Generate(context.Background(), []llms.Turn{llms.NewUserTurn("hello")}, "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply != "hi there" {
		t.Fatalf("expected first choice content, got %q", reply)
	}
	if authorization != "Bearer test-key" {
		t.Fatalf("expected bearer authorization, got %q", authorization)
	}
	if received.Model != "test-model" {
		t.Fatalf("expected model test-model, got %q", received.Model)
	}
	if len(received.Messages) != 2 || received.Messages[1].Content != "prompt" {
		t.Fatalf("expected history plus prompt, got %+v", received.Messages)
	}
}

func TestGenerateToleratesMissingChoices(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewChatClient("test-key", WithChatURL(server.URL), WithChatHTTPClient(server.Client()))

	reply, err := client.Generate(context.Background(), nil, "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "" {
		t.Fatalf("expected empty reply, got %q", reply)
	}
}

func TestGenerateFailsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"rate limited"}}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewChatClient("test-key", WithChatURL(server.URL), WithChatHTTPClient(server.Client()))

	_, err := client.Generate(context.Background(), nil, "prompt")
	if !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}
