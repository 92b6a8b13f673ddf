package cli

import (
	"context"
	"fmt"
	"sync"

	orchestration "github.com/koscakluka/ema-phone/core"
	"github.com/koscakluka/ema-phone/core/llms/gemini"
	"github.com/koscakluka/ema-phone/core/llms/openai"
	"github.com/koscakluka/ema-phone/core/retrieval"
	"github.com/koscakluka/ema-phone/core/retrieval/pgvector"
	"github.com/koscakluka/ema-phone/core/retrieval/pinecone"
	deepgramstt "github.com/koscakluka/ema-phone/core/speechtotext/deepgram"
	deepgramtts "github.com/koscakluka/ema-phone/core/texttospeech/deepgram"
	"github.com/koscakluka/ema-phone/internal/config"
	"github.com/koscakluka/ema-phone/internal/utils"
)

type sharedIndex interface {
	retrieval.Index
	Close()
}

// providerFactory builds the providers for each new session from the
// configuration and the credentials present at that moment. The pgvector
// pool is opened on first use and shared by every session. When the
// database URL changes the old pool is retired, not closed, because
// running sessions still query it; retired pools close with the factory.
type providerFactory struct {
	cfg         *config.Config
	credentials func() config.Credentials
	connect     func(ctx context.Context, databaseURL string) (sharedIndex, error)

	mu          sync.Mutex
	vectorIndex sharedIndex
	vectorDBURL string
	retired     []sharedIndex
}

func newProviderFactory(cfg *config.Config, credentials func() config.Credentials) (*providerFactory, error) {
	if _, err := deepgramtts.ParseVoice(cfg.Synthesis.Voice); err != nil {
		return nil, fmt.Errorf("synthesis.voice: %w", err)
	}
	return &providerFactory{cfg: cfg, credentials: credentials, connect: connectPGVector}, nil
}

func connectPGVector(ctx context.Context, databaseURL string) (sharedIndex, error) {
	return pgvector.Connect(ctx, databaseURL)
}

func (f *providerFactory) Providers(ctx context.Context) (orchestration.Providers, error) {
	creds := f.credentials()
	if missing := f.cfg.MissingCredentials(creds); len(missing) > 0 {
		return orchestration.Providers{}, &orchestration.ConfigurationError{Missing: missing}
	}

	index, err := f.index(ctx, creds)
	if err != nil {
		return orchestration.Providers{}, err
	}
	embedder := openai.NewEmbeddingClient(creds.OpenAIAPIKey,
		openai.WithEmbeddingURL(f.cfg.Retrieval.EmbeddingURL),
		openai.WithEmbeddingModel(f.cfg.Retrieval.EmbeddingModel))

	generator, err := f.generator(ctx, creds)
	if err != nil {
		return orchestration.Providers{}, err
	}
	voice, err := deepgramtts.ParseVoice(f.cfg.Synthesis.Voice)
	if err != nil {
		return orchestration.Providers{}, err
	}

	return orchestration.Providers{
		Transcriber: f.transcriber(creds.DeepgramAPIKey),
		Retriever:   retrieval.NewRetriever(embedder, index, retrieval.WithTopK(f.cfg.Retrieval.TopK)),
		Generator:   generator,
		Synthesizer: f.synthesizer(creds.DeepgramAPIKey, deepgramtts.WithVoice(voice)),
	}, nil
}

func (f *providerFactory) generator(ctx context.Context, creds config.Credentials) (orchestration.Generator, error) {
	httpClient := utils.NewHTTPClient(f.cfg.Generation.Timeout)
	if f.cfg.Generation.Backend == config.BackendGemini {
		client, err := gemini.NewGenerationClient(context.WithoutCancel(ctx), creds.GeminiAPIKey,
			gemini.WithBaseURL(f.cfg.Generation.URL),
			gemini.WithModel(f.cfg.Generation.Model),
			gemini.WithInstructions(f.cfg.Generation.Instructions),
			gemini.WithHTTPClient(httpClient))
		if err != nil {
			return nil, err
		}
		return client, nil
	}
	return openai.NewChatClient(creds.OpenAIAPIKey,
		openai.WithChatURL(f.cfg.Generation.URL),
		openai.WithChatModel(f.cfg.Generation.Model),
		openai.WithInstructions(f.cfg.Generation.Instructions),
		openai.WithChatHTTPClient(httpClient)), nil
}

func (f *providerFactory) transcriber(apiKey string) orchestration.Transcriber {
	opts := []deepgramstt.ClientOption{
		deepgramstt.WithURL(f.cfg.Transcription.URL),
		deepgramstt.WithModel(f.cfg.Transcription.Model),
		deepgramstt.WithLanguage(f.cfg.Transcription.Language),
	}
	if f.cfg.Transcription.Backend == config.BackendLive {
		return deepgramstt.NewStreamingTranscriptionClient(apiKey, opts...)
	}
	return deepgramstt.NewTranscriptionClient(apiKey, opts...)
}

func (f *providerFactory) synthesizer(apiKey string, voice deepgramtts.SpeechOption) orchestration.Synthesizer {
	opts := []deepgramtts.SpeechOption{deepgramtts.WithURL(f.cfg.Synthesis.URL), voice}
	if f.cfg.Synthesis.Backend == config.BackendLive {
		return deepgramtts.NewStreamingSpeechClient(apiKey, opts...)
	}
	return deepgramtts.NewSpeechClient(apiKey, opts...)
}

func (f *providerFactory) index(ctx context.Context, creds config.Credentials) (retrieval.Index, error) {
	if f.cfg.Retrieval.Backend != config.BackendPGVector {
		return pinecone.NewIndex(creds.PineconeAPIKey, f.cfg.Retrieval.PineconeHost,
			pinecone.WithNamespace(f.cfg.Retrieval.Namespace)), nil
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.vectorIndex != nil && f.vectorDBURL == creds.VectorDatabaseURL {
		return f.vectorIndex, nil
	}
	index, err := f.connect(context.WithoutCancel(ctx), creds.VectorDatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open vector database: %w", err)
	}
	if f.vectorIndex != nil {
		logger.InfoContext(ctx, "vector database URL changed, retiring previous pool")
		f.retired = append(f.retired, f.vectorIndex)
	}
	f.vectorIndex, f.vectorDBURL = index, creds.VectorDatabaseURL
	return index, nil
}

// Close releases every vector database pool the factory opened. Call it
// once no session can query them anymore.
func (f *providerFactory) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, index := range f.retired {
		index.Close()
	}
	f.retired = nil
	if f.vectorIndex != nil {
		f.vectorIndex.Close()
		f.vectorIndex = nil
	}
}
