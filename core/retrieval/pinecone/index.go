// Package pinecone queries a Pinecone index over its data-plane REST API.
package pinecone

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/koscakluka/ema-phone/core/retrieval"
	"github.com/koscakluka/ema-phone/internal/utils"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

var tracer = otel.Tracer("github.com/koscakluka/ema-phone/core/retrieval/pinecone")

var ErrQueryFailed = errors.New("pinecone query failed")

type Index struct {
	apiKey     string
	host       string
	namespace  string
	httpClient *http.Client
}

type IndexOption func(*Index)

// WithNamespace restricts queries to one namespace of the index.
func WithNamespace(namespace string) IndexOption {
	return func(i *Index) { i.namespace = namespace }
}

func WithHTTPClient(client *http.Client) IndexOption {
	return func(i *Index) {
		if client != nil {
			i.httpClient = client
		}
	}
}

// NewIndex targets the index served at host, e.g.
// "https://knowledge-abc123.svc.us-east-1.pinecone.io".
func NewIndex(apiKey, host string, opts ...IndexOption) *Index {
	index := &Index{apiKey: apiKey, host: strings.TrimSuffix(host, "/")}
	for _, opt := range opts {
		opt(index)
	}
	if index.httpClient == nil {
		index.httpClient = utils.NewHTTPClient(0)
	}
	return index
}

func (i *Index) Query(ctx context.Context, vector []float32, topK int) ([]retrieval.Match, error) {
	ctx, span := tracer.Start(ctx, "query index")
	defer span.End()

	requestBodyBytes, err := json.Marshal(queryRequestBody{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
		Namespace:       i.namespace,
	})
	if err != nil {
		return nil, fmt.Errorf("error marshalling JSON: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.host+"/query", bytes.NewReader(requestBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("error creating HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Api-Key", i.apiKey)

	resp, err := i.httpClient.Do(req)
	if err != nil {
		err = fmt.Errorf("error sending request: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("response.status_code", resp.StatusCode))
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: %s: %s", ErrQueryFailed, resp.Status, utils.ErrorBody(resp))
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	var responseBody queryResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&responseBody); err != nil {
		err = fmt.Errorf("error unmarshalling response body: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	matches := make([]retrieval.Match, 0, len(responseBody.Matches))
	for _, match := range responseBody.Matches {
		m := retrieval.Match{Score: match.Score}
		if match.Metadata != nil {
			m.Text = match.Metadata.Text
		}
		matches = append(matches, m)
	}
	return matches, nil
}

type queryRequestBody struct {
	Vector          []float32 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
	Namespace       string    `json:"namespace,omitempty"`
}

type queryResponseBody struct {
	Matches []struct {
		ID       string  `json:"id"`
		Score    float64 `json:"score"`
		Metadata *struct {
			Text string `json:"text"`
		} `json:"metadata"`
	} `json:"matches"`
}
