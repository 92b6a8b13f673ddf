// Package retrieval turns an utterance into a block of domain knowledge by
// embedding it and querying a vector index for the nearest snippets.
package retrieval

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const DefaultTopK = 3

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type Index interface {
	Query(ctx context.Context, vector []float32, topK int) ([]Match, error)
}

// Match is one scored snippet. Text is empty when the index entry carries no
// text metadata.
type Match struct {
	Score float64
	Text  string
}

type Retriever struct {
	embedder Embedder
	index    Index
	topK     int
}

type RetrieverOption func(*Retriever)

func WithTopK(topK int) RetrieverOption {
	return func(r *Retriever) {
		if topK > 0 {
			r.topK = topK
		}
	}
}

func NewRetriever(embedder Embedder, index Index, opts ...RetrieverOption) *Retriever {
	r := &Retriever{embedder: embedder, index: index, topK: DefaultTopK}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns the newline-joined text of the closest matches. An empty
// result means nothing relevant was found and is not an error.
func (r *Retriever) Retrieve(ctx context.Context, text string) (string, error) {
	ctx, span := tracer.Start(ctx, "retrieve context")
	defer span.End()

	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		err = fmt.Errorf("failed to embed text: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	if len(vector) == 0 {
		logger.WarnContext(ctx, "embedding came back empty, skipping index query")
		return "", nil
	}

	matches, err := r.index.Query(ctx, vector, r.topK)
	if err != nil {
		err = fmt.Errorf("failed to query index: %w", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	span.SetAttributes(attribute.Int("retrieval.matches", len(matches)))

	return JoinMatches(matches), nil
}

func JoinMatches(matches []Match) string {
	texts := make([]string, 0, len(matches))
	for _, match := range matches {
		if match.Text != "" {
			texts = append(texts, match.Text)
		}
	}
	return strings.Join(texts, "\n")
}
