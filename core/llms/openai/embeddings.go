package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultEmbeddingsURL   = "https://api.openai.com/v1/embeddings"
	DefaultEmbeddingsModel = "text-embedding-3-small"
)

var ErrEmbeddingFailed = errors.New("openai embedding failed")

type EmbeddingClient struct {
	apiKey     string
	model      string
	url        string
	httpClient *http.Client
}

type EmbeddingOption func(*EmbeddingClient)

func WithEmbeddingModel(model string) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithEmbeddingURL(url string) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if url != "" {
			c.url = url
		}
	}
}

func WithEmbeddingHTTPClient(client *http.Client) EmbeddingOption {
	return func(c *EmbeddingClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewEmbeddingClient(apiKey string, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		apiKey:     apiKey,
		model:      DefaultEmbeddingsModel,
		url:        DefaultEmbeddingsURL,
		httpClient: utils.NewHTTPClient(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Embed returns the embedding of text. A response without data yields an
// empty vector.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracer.Start(ctx, "embed text")
	defer span.End()

	requestBodyBytes, err := json.Marshal(embeddingRequestBody{Model: c.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(attribute.String("request.model", c.model))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s: %s", ErrEmbeddingFailed, resp.Status, utils.ErrorBody(resp))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var responseBody embeddingResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if len(responseBody.Data) == 0 {
		return []float32{}, nil
	}
	span.SetAttributes(attribute.Int("response.dimensions", len(responseBody.Data[0].Embedding)))
	return responseBody.Data[0].Embedding, nil
}

type embeddingRequestBody struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embeddingResponseBody struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}
