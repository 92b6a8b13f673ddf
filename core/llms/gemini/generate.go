// Package gemini generates replies with the Gemini API.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-phone/core/llms"
	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/genai"
)

const DefaultModel = "gemini-2.5-flash"

var ErrGenerationFailed = errors.New("gemini generation failed")

type generationOptions struct {
	model        string
	baseURL      string
	instructions string
	httpClient   *http.Client
}

type GenerationOption func(*generationOptions)

func WithModel(model string) GenerationOption {
	return func(o *generationOptions) {
		if model != "" {
			o.model = model
		}
	}
}

// WithBaseURL points the client at a different API host.
func WithBaseURL(url string) GenerationOption {
	return func(o *generationOptions) {
		if url != "" {
			o.baseURL = url
		}
	}
}

func WithInstructions(instructions string) GenerationOption {
	return func(o *generationOptions) { o.instructions = instructions }
}

func WithHTTPClient(client *http.Client) GenerationOption {
	return func(o *generationOptions) {
		if client != nil {
			o.httpClient = client
		}
	}
}

// GenerationClient holds no conversation state and may be shared between
// sessions.
type GenerationClient struct {
	client       *genai.Client
	model        string
	instructions string
}

func NewGenerationClient(ctx context.Context, apiKey string, opts ...GenerationOption) (*GenerationClient, error) {
	options := generationOptions{model: DefaultModel}
	for _, opt := range opts {
		opt(&options)
	}
	if options.httpClient == nil {
		options.httpClient = utils.NewHTTPClient(0)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPClient:  options.httpClient,
		HTTPOptions: genai.HTTPOptions{BaseURL: options.baseURL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}

	return &GenerationClient{
		client:       client,
		model:        options.model,
		instructions: options.instructions,
	}, nil
}

// Generate sends history followed by prompt as a user message and returns
// the text of the first candidate.
func (c *GenerationClient) Generate(ctx context.Context, history []llms.Turn, prompt string) (string, error) {
	ctx, span := tracer.Start(ctx, "generate reply")
	defer span.End()

	config := &genai.GenerateContentConfig{}
	if c.instructions != "" {
		config.SystemInstruction = genai.NewContentFromText(c.instructions, genai.RoleUser)
	}
	contents := toContents(history, prompt)

	span.SetAttributes(
		attribute.String("request.model", c.model),
		attribute.Int("request.contents", len(contents)),
	)
	resp, err := c.client.Models.GenerateContent(ctx, c.model, contents, config)
	if err != nil {
		err = fmt.Errorf("%w: %w", ErrGenerationFailed, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	reply := strings.TrimSpace(resp.Text())
	if reply == "" {
		logger.WarnContext(ctx, "gemini returned no text", "model", c.model)
	}
	return reply, nil
}

func toContents(history []llms.Turn, prompt string) []*genai.Content {
	contents := make([]*genai.Content, 0, len(history)+1)
	for _, turn := range history {
		var role genai.Role = genai.RoleUser
		if turn.Role == llms.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(turn.Content, role))
	}
	return append(contents, genai.NewContentFromText(prompt, genai.RoleUser))
}
