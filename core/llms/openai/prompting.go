package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/koscakluka/ema-phone/core/llms"
	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	DefaultChatURL   = "https://api.openai.com/v1/chat/completions"
	DefaultChatModel = "gpt-4o-mini"
)

var ErrGenerationFailed = errors.New("openai chat completion failed")

// ChatClient generates replies through the chat completions API. It holds
// no conversation state and may be shared between sessions.
type ChatClient struct {
	apiKey       string
	model        string
	url          string
	instructions string
	httpClient   *http.Client
}

type ChatOption func(*ChatClient)

func WithChatModel(model string) ChatOption {
	return func(c *ChatClient) {
		if model != "" {
			c.model = model
		}
	}
}

func WithChatURL(url string) ChatOption {
	return func(c *ChatClient) {
		if url != "" {
			c.url = url
		}
	}
}

// WithInstructions sets the system message sent ahead of the history.
func WithInstructions(instructions string) ChatOption {
	return func(c *ChatClient) { c.instructions = instructions }
}

func WithChatHTTPClient(client *http.Client) ChatOption {
	return func(c *ChatClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

func NewChatClient(apiKey string, opts ...ChatOption) *ChatClient {
	c := &ChatClient{
		apiKey:     apiKey,
		model:      DefaultChatModel,
		url:        DefaultChatURL,
		httpClient: utils.NewHTTPClient(0),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generate sends history followed by prompt as a user message and returns
// the content of the first completion. A response without choices yields an
// empty reply.
func (c *ChatClient) Generate(ctx context.Context, history []llms.Turn, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()

	messages, err := toChatMessages(c.instructions, history, prompt)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	reqBody := chatRequestBody{Model: c.model, Messages: messages}
	requestBodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.messages", len(messages)),
	)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s: %s", ErrGenerationFailed, resp.Status, utils.ErrorBody(resp))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var responseBody chatResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	if len(responseBody.Choices) == 0 {
		logger.WarnContext(ctx, "chat completion returned no choices", "model", c.model)
		return "", nil
	}
	return responseBody.Choices[0].Message.Content, nil
}

type chatRequestBody struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponseBody struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}
