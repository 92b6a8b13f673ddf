package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/koscakluka/ema-phone/core/texttospeech"
	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// SpeechClient synthesizes text with a single POST and streams the chunked
// response body.
type SpeechClient struct {
	apiKey  string
	options speechOptions
}

func NewSpeechClient(apiKey string, opts ...SpeechOption) *SpeechClient {
	return &SpeechClient{apiKey: apiKey, options: newSpeechOptions(DefaultSpeakURL, opts)}
}

// Synthesize returns once the response headers arrive. The caller owns the
// returned stream and must close it.
func (c *SpeechClient) Synthesize(ctx context.Context, text string) (texttospeech.Stream, error) {
	ctx, span := tracer.Start(ctx, "synthesize speech")
	defer span.End()

	requestBodyBytes, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	speakURL, err := buildSpeakURL(c.options)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, speakURL, bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	span.SetAttributes(attribute.Int("request.text_length", len(text)))
	resp, err := c.options.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		err := fmt.Errorf("%w: %s: %s", ErrSynthesisFailed, resp.Status, utils.ErrorBody(resp))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	return texttospeech.NewReaderStream(resp.Body, c.options.chunkSize), nil
}

func buildSpeakURL(options speechOptions) (string, error) {
	speakURL, err := url.Parse(options.url)
	if err != nil {
		return "", fmt.Errorf("invalid speak url: %w", err)
	}
	query := speakURL.Query()
	query.Set("model", string(options.voice))
	query.Set("encoding", options.encodingInfo.Format.Name())
	query.Set("sample_rate", strconv.Itoa(options.encodingInfo.SampleRate))
	query.Set("container", "none")
	speakURL.RawQuery = query.Encode()
	return speakURL.String(), nil
}
