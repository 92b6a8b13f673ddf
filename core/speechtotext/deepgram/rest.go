package deepgram

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TranscriptionClient transcribes one complete utterance per request.
type TranscriptionClient struct {
	apiKey  string
	options clientOptions
}

func NewTranscriptionClient(apiKey string, opts ...ClientOption) *TranscriptionClient {
	return &TranscriptionClient{apiKey: apiKey, options: newClientOptions(DefaultTranscriptionURL, opts)}
}

func (c *TranscriptionClient) Transcribe(ctx context.Context, audio []byte) (string, error) {
	ctx, span := tracer.Start(ctx, "transcribe utterance")
	defer span.End()

	encoding, err := convertEncoding(c.options.encodingInfo)
	if err != nil {
		return "", fmt.Errorf("invalid encoding: %w", err)
	}

	requestBodyBytes, err := json.Marshal(transcriptionRequestBody{
		Audio:      base64.StdEncoding.EncodeToString(audio),
		Encoding:   encoding.Format,
		SampleRate: encoding.SampleRate,
	})
	if err != nil {
		return "", fmt.Errorf("error marshalling JSON: %w", err)
	}

	requestURL, err := url.Parse(c.options.url)
	if err != nil {
		return "", fmt.Errorf("invalid transcription url: %w", err)
	}
	query := requestURL.Query()
	query.Set("model", c.options.model)
	query.Set("language", c.options.language)
	query.Set("smart_format", "true")
	requestURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL.String(), bytes.NewReader(requestBodyBytes))
	if err != nil {
		return "", fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Token "+c.apiKey)

	span.SetAttributes(attribute.Int("request.audio_bytes", len(audio)))
	resp, err := c.options.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s: %s", ErrTranscriptionFailed, resp.Status, utils.ErrorBody(resp))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	var responseBody transcriptionResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	return responseBody.transcript(), nil
}

type transcriptionRequestBody struct {
	Audio      string `json:"audio"`
	Encoding   string `json:"encoding"`
	SampleRate int    `json:"sample_rate"`
}

type transcriptionResponseBody struct {
	Results *struct {
		Channels []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"channels"`
	} `json:"results"`
}

// transcript is the best alternative of the first channel, or "" when the
// response carries none.
func (b transcriptionResponseBody) transcript() string {
	if b.Results == nil || len(b.Results.Channels) == 0 {
		return ""
	}
	alternatives := b.Results.Channels[0].Alternatives
	if len(alternatives) == 0 {
		return ""
	}
	return strings.TrimSpace(alternatives[0].Transcript)
}
