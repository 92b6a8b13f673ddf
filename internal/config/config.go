package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendREST     = "rest"
	BackendLive     = "live"
	BackendPinecone = "pinecone"
	BackendPGVector = "pgvector"
	BackendOpenAI   = "openai"
	BackendGemini   = "gemini"
)

// Credential names, read from the environment only.
const (
	DeepgramAPIKey    = "DEEPGRAM_API_KEY"
	OpenAIAPIKey      = "OPENAI_API_KEY"
	PineconeAPIKey    = "PINECONE_API_KEY"
	VectorDatabaseURL = "VECTOR_DATABASE_URL"
	GeminiAPIKey      = "GEMINI_API_KEY"
)

const DefaultInstructions = "You are a friendly sleep coach answering a phone call. " +
	"Keep answers short and conversational, one or two sentences, since they are spoken aloud."

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Session       SessionConfig       `yaml:"session"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Retrieval     RetrievalConfig     `yaml:"retrieval"`
	Generation    GenerationConfig    `yaml:"generation"`
	Synthesis     SynthesisConfig     `yaml:"synthesis"`
	Telemetry     TelemetryConfig     `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadLimit       int64         `yaml:"read_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type SessionConfig struct {
	Timeout       time.Duration `yaml:"timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	QueueCapacity int           `yaml:"queue_capacity"`
	MaxFrameSize  int           `yaml:"max_frame_size"`
}

type TranscriptionConfig struct {
	Backend  string `yaml:"backend"`
	URL      string `yaml:"url"`
	Model    string `yaml:"model"`
	Language string `yaml:"language"`
}

type RetrievalConfig struct {
	Backend        string `yaml:"backend"`
	PineconeHost   string `yaml:"pinecone_host"`
	Namespace      string `yaml:"namespace"`
	TopK           int    `yaml:"top_k"`
	EmbeddingURL   string `yaml:"embedding_url"`
	EmbeddingModel string `yaml:"embedding_model"`
}

type GenerationConfig struct {
	Backend      string        `yaml:"backend"`
	URL          string        `yaml:"url"`
	Model        string        `yaml:"model"`
	Instructions string        `yaml:"instructions"`
	Timeout      time.Duration `yaml:"timeout"`
}

type SynthesisConfig struct {
	Backend string `yaml:"backend"`
	URL     string `yaml:"url"`
	Voice   string `yaml:"voice"`
}

type TelemetryConfig struct {
	Stdout bool `yaml:"stdout"`
}

func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadLimit:       16 << 20,
			ShutdownTimeout: 15 * time.Second,
		},
		Session: SessionConfig{
			Timeout:       5 * time.Minute,
			WriteTimeout:  10 * time.Second,
			QueueCapacity: 10,
			MaxFrameSize:  4 << 20,
		},
		Transcription: TranscriptionConfig{Backend: BackendREST},
		Retrieval: RetrievalConfig{
			Backend: BackendPinecone,
			TopK:    3,
		},
		Generation: GenerationConfig{
			Backend:      BackendOpenAI,
			Instructions: DefaultInstructions,
			Timeout:      30 * time.Second,
		},
		Synthesis: SynthesisConfig{Backend: BackendREST},
	}
}

// Load builds the configuration from defaults, the YAML file at path (if
// path is not empty) and EMA_PHONE_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	var errs []error
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}
	duration := func(key string, dst *time.Duration) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	boolean := func(key string, dst *bool) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("EMA_PHONE_ADDR", &c.Server.Addr)
	duration("EMA_PHONE_SESSION_TIMEOUT", &c.Session.Timeout)
	duration("EMA_PHONE_WRITE_TIMEOUT", &c.Session.WriteTimeout)
	integer("EMA_PHONE_QUEUE_CAPACITY", &c.Session.QueueCapacity)
	integer("EMA_PHONE_MAX_FRAME_SIZE", &c.Session.MaxFrameSize)
	str("EMA_PHONE_TRANSCRIPTION_BACKEND", &c.Transcription.Backend)
	str("EMA_PHONE_RETRIEVAL_BACKEND", &c.Retrieval.Backend)
	str("EMA_PHONE_PINECONE_HOST", &c.Retrieval.PineconeHost)
	str("EMA_PHONE_PINECONE_NAMESPACE", &c.Retrieval.Namespace)
	str("EMA_PHONE_GENERATION_BACKEND", &c.Generation.Backend)
	str("EMA_PHONE_GENERATION_MODEL", &c.Generation.Model)
	str("EMA_PHONE_SYNTHESIS_BACKEND", &c.Synthesis.Backend)
	str("EMA_PHONE_VOICE", &c.Synthesis.Voice)
	boolean("EMA_PHONE_TELEMETRY_STDOUT", &c.Telemetry.Stdout)

	return errors.Join(errs...)
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if c.Server.ReadLimit <= 0 {
		errs = append(errs, errors.New("server.read_limit must be positive"))
	}
	if c.Session.Timeout <= 0 {
		errs = append(errs, errors.New("session.timeout must be positive"))
	}
	if c.Session.WriteTimeout < 0 {
		errs = append(errs, errors.New("session.write_timeout must not be negative"))
	}
	if c.Session.MaxFrameSize <= 0 {
		errs = append(errs, errors.New("session.max_frame_size must be positive"))
	} else if int64(c.Session.MaxFrameSize) > c.Server.ReadLimit {
		errs = append(errs, errors.New("session.max_frame_size must not exceed server.read_limit"))
	}
	if c.Session.QueueCapacity <= 0 {
		errs = append(errs, errors.New("session.queue_capacity must be positive"))
	}
	if c.Retrieval.TopK <= 0 {
		errs = append(errs, errors.New("retrieval.top_k must be positive"))
	}

	switch c.Transcription.Backend {
	case BackendREST, BackendLive:
	default:
		errs = append(errs, fmt.Errorf("transcription.backend %q is not one of %s, %s", c.Transcription.Backend, BackendREST, BackendLive))
	}
	switch c.Synthesis.Backend {
	case BackendREST, BackendLive:
	default:
		errs = append(errs, fmt.Errorf("synthesis.backend %q is not one of %s, %s", c.Synthesis.Backend, BackendREST, BackendLive))
	}
	switch c.Generation.Backend {
	case BackendOpenAI, BackendGemini:
	default:
		errs = append(errs, fmt.Errorf("generation.backend %q is not one of %s, %s", c.Generation.Backend, BackendOpenAI, BackendGemini))
	}
	switch c.Retrieval.Backend {
	case BackendPinecone:
		if c.Retrieval.PineconeHost == "" {
			errs = append(errs, errors.New("retrieval.pinecone_host is required for the pinecone backend"))
		}
	case BackendPGVector:
	default:
		errs = append(errs, fmt.Errorf("retrieval.backend %q is not one of %s, %s", c.Retrieval.Backend, BackendPinecone, BackendPGVector))
	}

	for name, raw := range map[string]string{
		"transcription.url":       c.Transcription.URL,
		"retrieval.pinecone_host": c.Retrieval.PineconeHost,
		"retrieval.embedding_url": c.Retrieval.EmbeddingURL,
		"generation.url":          c.Generation.URL,
		"synthesis.url":           c.Synthesis.URL,
	} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s %q is not an absolute URL", name, raw))
		}
	}

	return errors.Join(errs...)
}

// Credentials are the provider secrets, looked up from the environment at
// the time of the call.
type Credentials struct {
	DeepgramAPIKey    string
	OpenAIAPIKey      string
	PineconeAPIKey    string
	VectorDatabaseURL string
	GeminiAPIKey      string
}

func LookupCredentials() Credentials {
	return Credentials{
		DeepgramAPIKey:    strings.TrimSpace(os.Getenv(DeepgramAPIKey)),
		OpenAIAPIKey:      strings.TrimSpace(os.Getenv(OpenAIAPIKey)),
		PineconeAPIKey:    strings.TrimSpace(os.Getenv(PineconeAPIKey)),
		VectorDatabaseURL: strings.TrimSpace(os.Getenv(VectorDatabaseURL)),
		GeminiAPIKey:      strings.TrimSpace(os.Getenv(GeminiAPIKey)),
	}
}

// RequiredCredentials names the secrets the configured backends need. The
// OpenAI key is always required since it serves embeddings.
func (c *Config) RequiredCredentials() []string {
	required := []string{DeepgramAPIKey, OpenAIAPIKey}
	if c.Generation.Backend == BackendGemini {
		required = append(required, GeminiAPIKey)
	}
	if c.Retrieval.Backend == BackendPGVector {
		return append(required, VectorDatabaseURL)
	}
	return append(required, PineconeAPIKey)
}

// MissingCredentials returns the required credential names that are empty
// in creds, in the order of RequiredCredentials.
func (c *Config) MissingCredentials(creds Credentials) []string {
	values := map[string]string{
		DeepgramAPIKey:    creds.DeepgramAPIKey,
		OpenAIAPIKey:      creds.OpenAIAPIKey,
		PineconeAPIKey:    creds.PineconeAPIKey,
		VectorDatabaseURL: creds.VectorDatabaseURL,
		GeminiAPIKey:      creds.GeminiAPIKey,
	}
	var missing []string
	for _, name := range c.RequiredCredentials() {
		if values[name] == "" {
			missing = append(missing, name)
		}
	}
	return missing
}
