package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/koscakluka/ema-phone/core/llms"
	"google.golang.org/genai"
)

type generateRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
}

func TestGenerateSendsHistoryAndReturnsText(t *testing.T) {
	var received generateRequest
	var path string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"hi there "}]}}]}`))
	}))
	defer server.Close()

	client, err := NewGenerationClient(context.Background(), "test-key",
		WithBaseURL(server.URL), WithModel("test-model"), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	history := []llms.Turn{llms.NewUserTurn("hello"), llms.NewAssistantTurn("hi")}
	reply, err := client.Generate(context.Background(), history, "prompt")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if reply != "hi there" {
		t.Fatalf("expected trimmed reply, got %q", reply)
	}
	if !strings.HasSuffix(path, "models/test-model:generateContent") {
		t.Fatalf("expected generateContent call for test-model, got %q", path)
	}
	if len(received.Contents) != 3 {
		t.Fatalf("expected history plus prompt, got %+v", received.Contents)
	}
	if received.Contents[1].Role != string(genai.RoleModel) {
		t.Fatalf("expected assistant turn as model role, got %q", received.Contents[1].Role)
	}
	if last := received.Contents[2]; last.Role != string(genai.RoleUser) || last.Parts[0].Text != "prompt" {
		t.Fatalf("expected prompt as final user content, got %+v", last)
	}
}

func TestGenerateFailsOnErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"bad request","status":"INVALID_ARGUMENT"}}`))
	}))
	defer server.Close()

	client, err := NewGenerationClient(context.Background(), "test-key",
		WithBaseURL(server.URL), WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.Generate(context.Background(), nil, "prompt"); !errors.Is(err, ErrGenerationFailed) {
		t.Fatalf("expected ErrGenerationFailed, got %v", err)
	}
}

func TestToContentsMapsRoles(t *testing.T) {
	contents := toContents([]llms.Turn{llms.NewAssistantTurn("earlier")}, "now")

	if len(contents) != 2 {
		t.Fatalf("expected 2 contents, got %d", len(contents))
	}
	if contents[0].Role != string(genai.RoleModel) || contents[1].Role != string(genai.RoleUser) {
		t.Fatalf("unexpected roles %q, %q", contents[0].Role, contents[1].Role)
	}
}
