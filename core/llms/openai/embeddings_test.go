package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestEmbedReturnsFirstEmbedding(t *testing.T) {
	var received embeddingRequestBody
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("failed to decode request: %v", err)
		}
		_, _ = w.Write([]byte(`{"data":[{"embedding":[0.5,-1,2]}]}`))
	}))
	defer server.Close()

	client := NewEmbeddingClient("test-key", WithEmbeddingURL(server.URL), WithEmbeddingModel("embed-model"), WithEmbeddingHTTPClient(server.Client()))

	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(vector) != 3 || vector[0] != 0.5 || vector[1] != -1 || vector[2] != 2 {
		t.Fatalf("unexpected embedding: %v", vector)
	}
	if received.Model != "embed-model" || received.Input != "hello" {
		t.Fatalf("unexpected request body: %+v", received)
	}
}

func TestEmbedToleratesMissingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"object":"list"}`))
	}))
	defer server.Close()

	client := NewEmbeddingClient("test-key", WithEmbeddingURL(server.URL), WithEmbeddingHTTPClient(server.Client()))

	vector, err := client.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vector) != 0 {
		t.Fatalf("expected empty vector, got %v", vector)
	}
}

func TestEmbedFailsOnNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewEmbeddingClient("bad-key", WithEmbeddingURL(server.URL), WithEmbeddingHTTPClient(server.Client()))

	if _, err := client.Embed(context.Background(), "hello"); !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
}
